package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

type fakeRepo struct {
	commands     []model.Command
	redeems      []model.Redeem
	commandUsage []string
	redeemUsage  []string
}

func (f *fakeRepo) ListActiveCommands(ctx context.Context, platform string) ([]model.Command, error) {
	return f.commands, nil
}
func (f *fakeRepo) ListActiveRedeems(ctx context.Context, platform string) ([]model.Redeem, error) {
	return f.redeems, nil
}
func (f *fakeRepo) RecordCommandUsage(ctx context.Context, commandID, userID string, at time.Time) error {
	f.commandUsage = append(f.commandUsage, commandID+"/"+userID)
	return nil
}
func (f *fakeRepo) RecordRedeemUsage(ctx context.Context, redeemID, userID string, at time.Time) error {
	f.redeemUsage = append(f.redeemUsage, redeemID+"/"+userID)
	return nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, platform, account, channel, text string) error {
	f.sent = append(f.sent, platform+"|"+account+"|"+channel+"|"+text)
	return nil
}

type fakeCreds struct {
	accounts map[string]string
}

func (f *fakeCreds) AccountForCredentialID(ctx context.Context, credentialID string) (string, error) {
	acc, ok := f.accounts[credentialID]
	if !ok {
		return "", errs.New(errs.NotFound, "no such credential")
	}
	return acc, nil
}

type fixedCommandExecutor struct {
	response string
	err      error
	calls    int
}

func (f *fixedCommandExecutor) Execute(ctx context.Context, cmd model.Command, msg *event.ChatMessage) (string, error) {
	f.calls++
	return f.response, f.err
}

type fixedRedeemExecutor struct {
	response string
	calls    int
}

func (f *fixedRedeemExecutor) Execute(ctx context.Context, redeem model.Redeem, payload event.RedemptionPayload) (string, error) {
	f.calls++
	return f.response, nil
}

func broadcasterAccount(platform string) string { return "broadcaster" }

func newDispatcher(t *testing.T, repo *fakeRepo, sender *fakeSender, creds *fakeCreds, cmdExec CommandExecutor, redeemExec RedeemExecutor) *Dispatcher {
	t.Helper()
	d, err := New(repo, sender, creds, broadcasterAccount, cmdExec, redeemExec, nil)
	require.NoError(t, err)
	return d
}

func TestHandleChatMessage_MatchesFirstTokenCaseInsensitive(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{ID: "c1", Platform: "twitch_irc", Name: "!Hello", IsActive: true}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi there"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	err := d.HandleChatMessage(context.Background(), &event.ChatMessage{
		PlatformName: event.PlatformTwitchIRC, Channel: "#chan", UserID: "u1", Text: "!hello world",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "twitch_irc|broadcaster|#chan|hi there", sender.sent[0])
	assert.Equal(t, []string{"c1/u1"}, repo.commandUsage)
}

func TestHandleChatMessage_NoMatchDoesNothing(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{ID: "c1", Platform: "twitch_irc", Name: "!hello", IsActive: true}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	err := d.HandleChatMessage(context.Background(), &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Text: "unrelated message"})
	require.NoError(t, err)
	assert.Equal(t, 0, exec.calls)
	assert.Empty(t, sender.sent)
}

func TestHandleChatMessage_CooldownBlocksSecondInvocation(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{ID: "c1", Platform: "twitch_irc", Name: "!hello", IsActive: true, CooldownSeconds: 60}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	msg := &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, UserID: "u1", Text: "!hello"}
	require.NoError(t, d.HandleChatMessage(context.Background(), msg))
	require.NoError(t, d.HandleChatMessage(context.Background(), msg))

	assert.Equal(t, 1, exec.calls)
}

func TestHandleChatMessage_CooldownWarnOnceFiresOnlyOnce(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{
		ID: "c1", Platform: "twitch_irc", Name: "!hello", IsActive: true, CooldownSeconds: 60,
		Metadata: map[string]string{model.MetaCooldownWarnOnce: "true"},
	}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	msg := &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, UserID: "u1", Text: "!hello"}
	require.NoError(t, d.HandleChatMessage(context.Background(), msg))

	key := model.CooldownKey{EntityID: "c1", UserID: "u1"}
	require.NoError(t, d.HandleChatMessage(context.Background(), msg))
	rec, ok := d.cooldowns.Get(key)
	require.True(t, ok)
	assert.True(t, rec.WarnedOnce)

	require.NoError(t, d.HandleChatMessage(context.Background(), msg))
	assert.Equal(t, 1, exec.calls)
}

func TestHandleChatMessage_RespondWithCredential(t *testing.T) {
	validUUID := "123e4567-e89b-12d3-a456-426614174000"
	repo := &fakeRepo{commands: []model.Command{{
		ID: "c1", Platform: "twitch_irc", Name: "!hello", IsActive: true,
		Metadata: map[string]string{model.MetaRespondWithCredential: validUUID},
	}}}
	sender := &fakeSender{}
	creds := &fakeCreds{accounts: map[string]string{validUUID: "bot1"}}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, creds, exec, &fixedRedeemExecutor{})

	require.NoError(t, d.HandleChatMessage(context.Background(), &event.ChatMessage{
		PlatformName: event.PlatformTwitchIRC, Channel: "#c", UserID: "u1", Text: "!hello",
	}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "twitch_irc|bot1|#c|hi", sender.sent[0])
}

func TestHandleChatMessage_RespondWithCredential_NonUUIDFails(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{
		ID: "c1", Platform: "twitch_irc", Name: "!hello", IsActive: true,
		Metadata: map[string]string{model.MetaRespondWithCredential: "not-a-uuid"},
	}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	err := d.HandleChatMessage(context.Background(), &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Text: "!hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestHandleChatMessage_RequiredRoleGatesExecution(t *testing.T) {
	repo := &fakeRepo{commands: []model.Command{{
		ID: "c1", Platform: "twitch_irc", Name: "!mod", IsActive: true, RequiredRoles: []string{"mod"},
	}}}
	sender := &fakeSender{}
	exec := &fixedCommandExecutor{response: "hi"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, exec, &fixedRedeemExecutor{})

	require.NoError(t, d.HandleChatMessage(context.Background(), &event.ChatMessage{
		PlatformName: event.PlatformTwitchIRC, Text: "!mod", Metadata: map[string]string{"roles": "subscriber"},
	}))
	assert.Equal(t, 0, exec.calls)

	require.NoError(t, d.HandleChatMessage(context.Background(), &event.ChatMessage{
		PlatformName: event.PlatformTwitchIRC, Text: "!mod", Metadata: map[string]string{"roles": "mod"},
	}))
	assert.Equal(t, 1, exec.calls)
}

func TestHandleRedemption_MatchesByRewardID(t *testing.T) {
	repo := &fakeRepo{redeems: []model.Redeem{{ID: "r1", Platform: "twitch_eventsub", IsActive: true, RewardID: "reward-1"}}}
	sender := &fakeSender{}
	exec := &fixedRedeemExecutor{response: "redeemed!"}
	d := newDispatcher(t, repo, sender, &fakeCreds{}, &fixedCommandExecutor{}, exec)

	err := d.HandleRedemption(context.Background(), &event.TwitchEventSub{
		Variant: event.ChannelPointsRedemptionVariant,
		Payload: map[string]any{
			"user_id": "u1",
			"reward":  map[string]any{"id": "reward-1", "title": "Hydrate"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, []string{"r1/u1"}, repo.redeemUsage)
}

func TestHandleRedemption_IgnoresOtherVariants(t *testing.T) {
	repo := &fakeRepo{redeems: []model.Redeem{{ID: "r1", Platform: "twitch_eventsub", IsActive: true, RewardID: "reward-1"}}}
	exec := &fixedRedeemExecutor{response: "redeemed!"}
	d := newDispatcher(t, repo, &fakeSender{}, &fakeCreds{}, &fixedCommandExecutor{}, exec)

	err := d.HandleRedemption(context.Background(), &event.TwitchEventSub{Variant: "channel.follow"})
	require.NoError(t, err)
	assert.Equal(t, 0, exec.calls)
}
