/*
Package dispatch is the command/redeem dispatcher (C10): it matches
normalized chat messages and channel-points redemptions against active
commands/redeems, enforces per-(entity, user) cooldowns, and sends
responses back through the platform manager.
*/
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// Repository resolves active commands/redeems and records usage.
type Repository interface {
	ListActiveCommands(ctx context.Context, platform string) ([]model.Command, error)
	ListActiveRedeems(ctx context.Context, platform string) ([]model.Redeem, error)
	RecordCommandUsage(ctx context.Context, commandID, userID string, at time.Time) error
	RecordRedeemUsage(ctx context.Context, redeemID, userID string, at time.Time) error
}

// Sender relays a response through the platform manager.
type Sender interface {
	Send(ctx context.Context, platform, account, channel, text string) error
}

// CredentialAccounts maps a credential_id to the (platform, account) that
// owns it, so a command's metadata[respond_with_credential] can be
// resolved to a runtime to send through.
type CredentialAccounts interface {
	AccountForCredentialID(ctx context.Context, credentialID string) (account string, err error)
}

// CommandExecutor produces a command's response text. The dispatcher
// only handles matching, cooldowns, and delivery; what a command
// actually does (an AI prompt, a plugin round trip, a canned reply) is
// the executor's concern.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd model.Command, msg *event.ChatMessage) (response string, err error)
}

// RedeemExecutor is CommandExecutor's counterpart for channel-points
// redemptions.
type RedeemExecutor interface {
	Execute(ctx context.Context, redeem model.Redeem, payload event.RedemptionPayload) (response string, err error)
}

// cooldownCacheSize bounds the in-memory cooldown ledger. Usage is also
// recorded via RecordCommandUsage/RecordRedeemUsage, but cooldown checks
// read only this cache, so cooldown state is lost on restart or eviction.
const cooldownCacheSize = 4096

// Dispatcher is the command/redeem dispatcher (C10).
type Dispatcher struct {
	repo               Repository
	sender             Sender
	creds              CredentialAccounts
	broadcasterAccount func(platform string) string
	cmdExec            CommandExecutor
	redeemExec         RedeemExecutor
	log                *slog.Logger

	cooldowns *lru.Cache[model.CooldownKey, model.CooldownRecord]
}

// New builds a Dispatcher. broadcasterAccount resolves the default
// account name to send through for a platform when a command doesn't
// name a specific respond_with_credential.
func New(
	repo Repository,
	sender Sender,
	creds CredentialAccounts,
	broadcasterAccount func(platform string) string,
	cmdExec CommandExecutor,
	redeemExec RedeemExecutor,
	log *slog.Logger,
) (*Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New[model.CooldownKey, model.CooldownRecord](cooldownCacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "dispatch: build cooldown cache")
	}
	return &Dispatcher{
		repo:               repo,
		sender:             sender,
		creds:              creds,
		broadcasterAccount: broadcasterAccount,
		cmdExec:            cmdExec,
		redeemExec:         redeemExec,
		log:                log,
		cooldowns:          cache,
	}, nil
}

// HandleChatMessage matches msg against the active commands for its
// platform and, on a match whose cooldown has elapsed, executes and
// responds.
func (d *Dispatcher) HandleChatMessage(ctx context.Context, msg *event.ChatMessage) error {
	commands, err := d.repo.ListActiveCommands(ctx, string(msg.PlatformName))
	if err != nil {
		return err
	}

	cmd, ok := matchCommand(commands, msg.Text)
	if !ok {
		return nil
	}
	if !hasRequiredRole(cmd.RequiredRoles, msg.Metadata["roles"]) {
		return nil
	}

	key := model.CooldownKey{EntityID: cmd.ID, UserID: msg.UserID}
	now := time.Now()
	if !d.tryConsumeCooldown(key, time.Duration(cmd.CooldownSeconds)*time.Second, now, cmd.WarnOnce()) {
		return nil
	}

	response, err := d.cmdExec.Execute(ctx, cmd, msg)
	if err != nil {
		return err
	}
	if err := d.repo.RecordCommandUsage(ctx, cmd.ID, msg.UserID, now); err != nil {
		return err
	}
	if response == "" {
		return nil
	}

	return d.respond(ctx, string(msg.PlatformName), msg.Channel, &cmd, response)
}

// HandleRedemption matches a Twitch channel-points redemption event
// against the active redeems for twitch_eventsub.
func (d *Dispatcher) HandleRedemption(ctx context.Context, ev *event.TwitchEventSub) error {
	if ev.Variant != event.ChannelPointsRedemptionVariant {
		return nil
	}
	payload := event.ParseRedemptionPayload(ev.Payload)

	redeems, err := d.repo.ListActiveRedeems(ctx, string(event.PlatformTwitchEventSub))
	if err != nil {
		return err
	}

	redeem, ok := matchRedeem(redeems, payload.RewardID)
	if !ok {
		return nil
	}

	key := model.CooldownKey{EntityID: redeem.ID, UserID: payload.UserID}
	now := time.Now()
	if !d.tryConsumeCooldown(key, time.Duration(redeem.CooldownSeconds)*time.Second, now, redeem.Metadata[model.MetaCooldownWarnOnce] == "true") {
		return nil
	}

	response, err := d.redeemExec.Execute(ctx, redeem, payload)
	if err != nil {
		return err
	}
	if err := d.repo.RecordRedeemUsage(ctx, redeem.ID, payload.UserID, now); err != nil {
		return err
	}
	if response == "" {
		return nil
	}

	cmd := model.Command{Platform: redeem.Platform, Metadata: redeem.Metadata}
	return d.respond(ctx, redeem.Platform, "", &cmd, response)
}

// tryConsumeCooldown reports whether the caller may proceed. If the
// cooldown has not elapsed it emits at most one warning per window when
// warnOnce is set, and always returns false.
func (d *Dispatcher) tryConsumeCooldown(key model.CooldownKey, cooldown time.Duration, now time.Time, warnOnce bool) bool {
	record, had := d.cooldowns.Get(key)
	if had && now.Sub(record.LastRunAt) < cooldown {
		if warnOnce && !record.WarnedOnce {
			record.WarnedOnce = true
			d.cooldowns.Add(key, record)
			d.log.Info("DISPATCH_COOLDOWN_WARNING", "entity_id", key.EntityID, "user_id", key.UserID)
		}
		return false
	}

	d.cooldowns.Add(key, model.CooldownRecord{LastRunAt: now})
	return true
}

// respond sends text back through the platform manager, using the
// credential named in cmd.Metadata[respond_with_credential] if present,
// otherwise the platform's broadcaster account.
func (d *Dispatcher) respond(ctx context.Context, platform, channel string, cmd *model.Command, text string) error {
	account := d.broadcasterAccount(platform)

	if credIDRaw, ok := cmd.RespondCredentialID(); ok {
		if _, err := uuid.Parse(credIDRaw); err != nil {
			return errs.Wrapf(errs.InvalidInput, err, "dispatch: respond_with_credential %q is not a credential_id", credIDRaw)
		}
		acc, err := d.creds.AccountForCredentialID(ctx, credIDRaw)
		if err != nil {
			return err
		}
		account = acc
	}

	return d.sender.Send(ctx, platform, account, channel, text)
}

// matchCommand finds the first active command whose name matches text,
// per spec: a case-insensitive prefix of the message, or a
// case-insensitive match of the message's first whitespace-delimited
// token.
func matchCommand(commands []model.Command, text string) (model.Command, bool) {
	lowerText := strings.ToLower(text)
	firstToken := strings.ToLower(firstField(text))

	for _, cmd := range commands {
		lowerName := strings.ToLower(cmd.Name)
		if lowerName == firstToken || strings.HasPrefix(lowerText, lowerName) {
			return cmd, true
		}
	}
	return model.Command{}, false
}

func matchRedeem(redeems []model.Redeem, rewardID string) (model.Redeem, bool) {
	if rewardID == "" {
		return model.Redeem{}, false
	}
	for _, r := range redeems {
		if r.RewardID == rewardID {
			return r, true
		}
	}
	return model.Redeem{}, false
}

func firstField(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// hasRequiredRole reports whether roles (comma-separated) satisfies
// required (any-of); an empty required list imposes no restriction.
func hasRequiredRole(required []string, roles string) bool {
	if len(required) == 0 {
		return true
	}
	have := map[string]struct{}{}
	for _, r := range strings.Split(roles, ",") {
		if r != "" {
			have[r] = struct{}{}
		}
	}
	for _, want := range required {
		if _, ok := have[want]; ok {
			return true
		}
	}
	return false
}
