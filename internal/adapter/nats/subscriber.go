package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
)

// Default subjects for the auth events this service consumes.
const (
	DefaultLoginSubject  = "auth.user.login"
	DefaultLogoutSubject = "auth.user.logout"
)

// AuthHandler receives the session transitions that drive cart
// reconciliation. CartSync implements it.
type AuthHandler interface {
	OnLoginSuccess(ctx context.Context) error
	OnLogout(ctx context.Context) error
}

// TokenSink is where the subscriber deposits the token carried by a login
// event before the handler runs. The session manager implements it.
type TokenSink interface {
	SetToken(token string)
	ClearToken()
}

type loginEvent struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// AuthSubscriber listens for login/logout events from the auth service and
// drives the guest/authenticated cart transitions.
type AuthSubscriber struct {
	conn          *nats.Conn
	handler       AuthHandler
	tokens        TokenSink
	log           logger.Logger
	loginSubject  string
	logoutSubject string
	subs          []*nats.Subscription
}

func NewAuthSubscriber(conn *nats.Conn, handler AuthHandler, tokens TokenSink, log logger.Logger, loginSubject, logoutSubject string) (*AuthSubscriber, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	if loginSubject == "" {
		loginSubject = DefaultLoginSubject
	}
	if logoutSubject == "" {
		logoutSubject = DefaultLogoutSubject
	}
	return &AuthSubscriber{
		conn:          conn,
		handler:       handler,
		tokens:        tokens,
		log:           log,
		loginSubject:  loginSubject,
		logoutSubject: logoutSubject,
	}, nil
}

func (s *AuthSubscriber) Start() error {
	loginSub, err := s.conn.Subscribe(s.loginSubject, s.handleLogin)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.loginSubject, err)
	}
	s.subs = append(s.subs, loginSub)

	logoutSub, err := s.conn.Subscribe(s.logoutSubject, s.handleLogout)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.logoutSubject, err)
	}
	s.subs = append(s.subs, logoutSub)

	s.log.Infof("Subscribed to auth events: %s, %s", s.loginSubject, s.logoutSubject)
	return nil
}

func (s *AuthSubscriber) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Warnf("Failed to unsubscribe from %s: %v", sub.Subject, err)
		}
	}
	s.subs = nil
}

func (s *AuthSubscriber) handleLogin(msg *nats.Msg) {
	var event loginEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.log.Errorf("Failed to decode login event on %s: %v", msg.Subject, err)
		return
	}
	if event.Token != "" {
		s.tokens.SetToken(event.Token)
	}
	if err := s.handler.OnLoginSuccess(context.Background()); err != nil {
		s.log.Errorf("Cart reconciliation after login failed for user %s: %v", event.UserID, err)
	}
}

func (s *AuthSubscriber) handleLogout(msg *nats.Msg) {
	s.tokens.ClearToken()
	if err := s.handler.OnLogout(context.Background()); err != nil {
		s.log.Errorf("Cart reload after logout failed: %v", err)
	}
}
