/*
Package obs implements platform.Connector for OBS Studio's WebSocket v5
protocol (Hello -> Identify -> Identified handshake, then Request/
RequestResponse and Event frames), over gorilla/websocket.
*/
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/platform"
)

// OBS WebSocket v5 opcodes this connector cares about.
const (
	opHello             = 0
	opIdentify          = 1
	opIdentified        = 2
	opEvent             = 5
	opRequest           = 6
	opRequestResponse   = 7
)

const rpcVersion = 1

// SceneSwitcher is the narrow interface the plugin manager uses to
// trigger OBS scene changes without depending on this package's
// websocket plumbing directly.
type SceneSwitcher interface {
	SetCurrentScene(ctx context.Context, sceneName string) error
}

type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type requestData struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

// Connector is a platform.Connector for one OBS WebSocket endpoint.
type Connector struct {
	cred *model.PlatformCredential
	addr string

	conn *websocket.Conn
}

// New builds a platform.ConnectorFactory bound to cred, for registration
// under the "obs" key. cred.AdditionalData["address"] is the ws:// URL
// (e.g. "ws://127.0.0.1:4455"); cred.PrimaryToken is the OBS WebSocket
// server password, if one is set.
func New(cred *model.PlatformCredential) platform.ConnectorFactory {
	return func(ctx context.Context) (platform.Connector, error) {
		addr := cred.AdditionalData["address"]
		if addr == "" {
			addr = "ws://127.0.0.1:4455"
		}
		return &Connector{cred: cred, addr: addr}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.addr, nil)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "obs: dial")
	}
	c.conn = conn

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return errs.Wrap(errs.Platform, err, "obs: read hello")
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		conn.Close()
		return errs.Wrap(errs.Parse, err, "obs: parse hello")
	}

	ident := identifyData{RPCVersion: rpcVersion, EventSubscriptions: 0}
	if hd.Authentication != nil {
		ident.Authentication = authString(c.cred.PrimaryToken, hd.Authentication.Salt, hd.Authentication.Challenge)
	}
	identD, _ := json.Marshal(ident)
	if err := conn.WriteJSON(frame{Op: opIdentify, D: identD}); err != nil {
		conn.Close()
		return errs.Wrap(errs.Io, err, "obs: write identify")
	}

	var identified frame
	if err := conn.ReadJSON(&identified); err != nil {
		conn.Close()
		return errs.Wrap(errs.Platform, err, "obs: read identified")
	}
	if identified.Op != opIdentified {
		conn.Close()
		return errs.Newf(errs.Auth, "obs: identify rejected (op=%d)", identified.Op)
	}
	return nil
}

// authString implements OBS WebSocket v5's password authentication:
// base64(sha256(base64(sha256(password+salt))+challenge)).
func authString(password, salt, challenge string) string {
	step1 := sha256.Sum256([]byte(password + salt))
	b64Step1 := base64.StdEncoding.EncodeToString(step1[:])
	step2 := sha256.Sum256([]byte(b64Step1 + challenge))
	return base64.StdEncoding.EncodeToString(step2[:])
}

func (c *Connector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.Wrap(errs.Io, err, "obs: read frame")
		}
		if f.Op != opEvent {
			continue
		}
		msg := &event.SystemMessage{Text: "obs: event received", At: time.Now()}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send is unused for OBS; scene control goes through SetCurrentScene.
func (c *Connector) Send(ctx context.Context, channel, text string) error {
	return errs.New(errs.InvalidInput, "obs: Send is not supported, use SetCurrentScene")
}

// SetCurrentScene issues a SetCurrentProgramScene request.
func (c *Connector) SetCurrentScene(ctx context.Context, sceneName string) error {
	reqData, _ := json.Marshal(map[string]string{"sceneName": sceneName})
	req := requestData{RequestType: "SetCurrentProgramScene", RequestID: "scene-switch", RequestData: reqData}
	d, _ := json.Marshal(req)
	if err := c.conn.WriteJSON(frame{Op: opRequest, D: d}); err != nil {
		return errs.Wrap(errs.Io, err, "obs: write request")
	}
	return nil
}

func (c *Connector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
