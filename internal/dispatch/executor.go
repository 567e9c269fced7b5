package dispatch

import (
	"context"
	"strings"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
)

// TemplateCommandExecutor is the default CommandExecutor: it renders
// Metadata[prompt] with a small set of {{placeholder}} substitutions.
// Commands naming a plugin_id still render through this path today;
// routing a command's execution into a connected plugin session requires
// a request/response RPC the plugin wire doesn't have yet (StartSession
// only carries plugin-initiated frames).
type TemplateCommandExecutor struct{}

// NewTemplateCommandExecutor builds a TemplateCommandExecutor.
func NewTemplateCommandExecutor() *TemplateCommandExecutor {
	return &TemplateCommandExecutor{}
}

// Execute implements CommandExecutor.
func (TemplateCommandExecutor) Execute(_ context.Context, cmd model.Command, msg *event.ChatMessage) (string, error) {
	prompt, ok := cmd.Metadata[model.MetaPrompt]
	if !ok {
		return "", nil
	}
	return renderTemplate(prompt, map[string]string{
		"user":    msg.UserName,
		"channel": msg.Channel,
		"command": cmd.Name,
	}), nil
}

// TemplateRedeemExecutor is RedeemExecutor's counterpart to
// TemplateCommandExecutor.
type TemplateRedeemExecutor struct{}

// NewTemplateRedeemExecutor builds a TemplateRedeemExecutor.
func NewTemplateRedeemExecutor() *TemplateRedeemExecutor {
	return &TemplateRedeemExecutor{}
}

// Execute implements RedeemExecutor.
func (TemplateRedeemExecutor) Execute(_ context.Context, redeem model.Redeem, payload event.RedemptionPayload) (string, error) {
	prompt, ok := redeem.Metadata[model.MetaPrompt]
	if !ok {
		return "", nil
	}
	return renderTemplate(prompt, map[string]string{
		"user":   payload.UserName,
		"input":  payload.UserInput,
		"redeem": redeem.Name,
	}), nil
}

func renderTemplate(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
