// Package auth handles player accounts, sessions and request authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/store"
)

// StartingElo is the rating of a player first seen on the game server.
const StartingElo = 200

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrInvalidCode        = errors.New("invalid code")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// PlayerGenerateCodeIntent is sent by the game server when a player asks for
// a code to register on the web. Unknown players are created from Username.
type PlayerGenerateCodeIntent struct {
	eventbus.IntentEvent
	Player   int64  `json:"player,omitempty"`
	Username string `json:"username,omitempty"`
}

// Accounts links game server players to web logins.
type Accounts struct {
	store store.Store
	clock clock.Clock
	log   logrus.FieldLogger
	code  func() int
}

func NewAccounts(st store.Store, clk clock.Clock, log logrus.FieldLogger) *Accounts {
	return &Accounts{
		store: st,
		clock: clk,
		log:   log.WithField("component", "accounts"),
		code:  func() int { return 100_000 + rand.IntN(900_000) },
	}
}

// Register subscribes the account handlers to the game bus.
func (a *Accounts) Register(games *eventbus.Bus) error {
	return eventbus.OnIntent(games, a.onGenerateCode)
}

func (a *Accounts) onGenerateCode(ctx context.Context, subject any, evt PlayerGenerateCodeIntent) (intent.Response, error) {
	var resp intent.Response
	err := a.store.Update(ctx, func(tx store.Tx) error {
		player, err := a.resolve(ctx, tx, evt)
		if err != nil || player == nil {
			resp = intent.Fail("Player not found")
			return err
		}
		if player.Verified() {
			resp = intent.Fail("You are already registered")
			return nil
		}

		code := a.code()
		player.VerificationCode = code
		if err := store.Save(ctx, tx, player); err != nil {
			return err
		}
		resp = intent.Succeed(fmt.Sprintf("Your verification code is %d", code)).With("player", player.ID)
		return nil
	})
	if err != nil {
		return intent.Response{}, err
	}
	if resp.Success {
		a.log.WithField("player", resp.Payload["player"]).Info("Verification code generated")
	}
	return resp, nil
}

func (a *Accounts) resolve(ctx context.Context, tx store.Tx, evt PlayerGenerateCodeIntent) (*store.Player, error) {
	if evt.Player != 0 {
		return store.Get[store.Player](ctx, tx, evt.Player)
	}
	if evt.Username == "" {
		return nil, nil
	}
	player, err := store.PlayerByUsername(ctx, tx, evt.Username)
	if err != nil || player != nil {
		return player, err
	}
	player = &store.Player{
		Username:  evt.Username,
		Elo:       StartingElo,
		CreatedAt: a.clock.Now(),
	}
	if err := store.Save(ctx, tx, player); err != nil {
		return nil, err
	}
	a.log.WithField("player", player.ID).Infof("Created player %s", player.Username)
	return player, nil
}

// SignUp sets the password of an unverified player that knows its
// verification code.
func (a *Accounts) SignUp(ctx context.Context, username string, code int, password string) (*store.Player, error) {
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var player *store.Player
	err = a.store.Update(ctx, func(tx store.Tx) error {
		var err error
		player, err = store.PlayerByUsername(ctx, tx, username)
		switch {
		case err != nil:
			return err
		case player == nil:
			return ErrUserNotFound
		case player.Verified():
			return ErrAlreadyVerified
		case player.VerificationCode == 0 || player.VerificationCode != code:
			return ErrInvalidCode
		}
		player.PasswordHash = string(hash)
		player.VerificationCode = 0
		return store.Save(ctx, tx, player)
	})
	if err != nil {
		return nil, err
	}
	a.log.WithField("player", player.ID).Infof("Player %s registered", player.Username)
	return player, nil
}

// Login checks the credentials of a registered player.
func (a *Accounts) Login(ctx context.Context, username, password string) (*store.Player, error) {
	player, err := store.PlayerByUsername(ctx, a.store, username)
	if err != nil {
		return nil, err
	}
	if player == nil || !player.Verified() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return player, nil
}

// DevLogin returns the player called username, creating it if needed. Only
// exposed in dev mode.
func (a *Accounts) DevLogin(ctx context.Context, username string) (*store.Player, error) {
	if username == "" {
		return nil, ErrUserNotFound
	}
	var player *store.Player
	err := a.store.Update(ctx, func(tx store.Tx) error {
		var err error
		player, err = a.resolve(ctx, tx, PlayerGenerateCodeIntent{Username: username})
		return err
	})
	return player, err
}
