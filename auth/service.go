package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/printhaus/storeauth/internal/config"
	apperrors "github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/internal/utils"
	"github.com/printhaus/storeauth/profiles"
	"github.com/printhaus/storeauth/sessions"
	"github.com/printhaus/storeauth/token"
	"github.com/printhaus/storeauth/users"
)

const defaultSessionTTL = 24 * time.Hour

// Repos holds all repository dependencies for the Manager
type Repos struct {
	Users    users.UserRepo // Repository for user accounts
	Profiles profiles.Repo  // Repository for storefront profiles
	Sessions sessions.Repo  // Repository for session data
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User    *users.User
	Session *sessions.Session
	IsAdmin bool
}

// RegisterResult is returned on successful registration. Profile is nil for
// realms that do not create one.
type RegisterResult struct {
	User    *users.User
	Profile *profiles.Profile
}

type resetRecord struct {
	userID    string
	email     string
	expiresAt time.Time
}

// Manager is the single owner of auth state transitions: it authenticates
// credentials, creates and destroys sessions, runs the idle-timeout policy,
// and notifies subscribers of every state change.
type Manager struct {
	repos    Repos
	tokens   *token.Manager
	realms   map[string]config.RealmPolicy
	idle     *IdleMonitor
	mailer   Mailer
	log      zerolog.Logger
	nowTime  func() time.Time // nowTime function (injectable for testing)
	resetTTL time.Duration

	resetMu sync.Mutex
	resets  map[string]resetRecord

	subMu   sync.Mutex
	subs    map[int]chan StateChange
	nextSub int
	closed  bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithMailer sets the mailer used for password-reset delivery.
func WithMailer(mailer Mailer) ManagerOption {
	return func(m *Manager) {
		m.mailer = mailer
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithResetTokenTTL sets how long password-reset tokens stay valid.
func WithResetTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.resetTTL = ttl
	}
}

// NewManager initializes a new Manager with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewManager(
	repos Repos,
	tokens *token.Manager,
	realms map[string]config.RealmPolicy,
	options ...ManagerOption,
) (*Manager, error) {
	// Validate required parameters
	if repos.Users == nil {
		return nil, errors.New("[NewManager] Users repo is required")
	}
	if repos.Profiles == nil {
		return nil, errors.New("[NewManager] Profiles repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewManager] Sessions repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewManager] token manager is required")
	}
	if len(realms) == 0 {
		return nil, errors.New("[NewManager] at least one realm policy is required")
	}

	m := &Manager{
		repos:    repos,
		tokens:   tokens,
		realms:   realms,
		nowTime:  time.Now,
		resetTTL: time.Hour,
		resets:   make(map[string]resetRecord),
		subs:     make(map[int]chan StateChange),
		log:      zerolog.Nop(),
	}
	m.idle = NewIdleMonitor(m.handleIdleExpiry)
	m.mailer = LogMailer{Log: m.log}

	// Apply optional configuration
	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Login checks the credentials against the realm policy and creates a
// session. Unknown emails and wrong passwords both surface as
// ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, realm, email, password string) (*LoginResult, error) {
	policy, ok := m.realms[realm]
	if !ok {
		return nil, apperrors.ErrUnknownRealm
	}

	user, err := m.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.CanLogin() {
		return nil, apperrors.ErrUserBlocked
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if policy.RequiredRole != "" && string(user.Role) != policy.RequiredRole {
		return nil, apperrors.ErrRoleForbidden
	}

	session, err := m.createSession(ctx, user, realm, policy)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] createSession")
	}

	if err := m.repos.Users.SetLastLogin(ctx, email); err != nil {
		m.log.Warn().Err(err).Str("email", email).Msg("failed to record last login")
	}

	return &LoginResult{User: user, Session: session, IsAdmin: user.IsAdmin()}, nil
}

// LoginFederated creates a session for an identity already verified by an
// external OIDC provider. A first-time federated login creates the account.
func (m *Manager) LoginFederated(ctx context.Context, realm, email, name string) (*LoginResult, error) {
	policy, ok := m.realms[realm]
	if !ok {
		return nil, apperrors.ErrUnknownRealm
	}

	user, err := m.repos.Users.GetByEmail(ctx, email)
	if apperrors.Is(err, apperrors.ErrUserNotFound) {
		user = &users.User{
			Email:     email,
			Name:      name,
			Role:      users.Role(policy.DefaultRole),
			CreatedAt: m.nowTime(),
			External:  true,
		}
		if err := m.repos.Users.Upsert(ctx, user); err != nil {
			return nil, errors.Wrap(err, "[Manager.LoginFederated] Users.Upsert")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "[Manager.LoginFederated] Users.GetByEmail")
	}

	if !user.CanLogin() {
		return nil, apperrors.ErrUserBlocked
	}
	if policy.RequiredRole != "" && string(user.Role) != policy.RequiredRole {
		return nil, apperrors.ErrRoleForbidden
	}

	session, err := m.createSession(ctx, user, realm, policy)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.LoginFederated] createSession")
	}

	return &LoginResult{User: user, Session: session, IsAdmin: user.IsAdmin()}, nil
}

// Register creates a new account in a realm that allows self-service
// registration. Storefront registrations additionally write a profile row in
// a second step. When the profile write fails the account is left in place
// and the profile error is surfaced; a compensating delete could race with a
// concurrent login, so the orphan stays and the profile write can be retried.
func (m *Manager) Register(ctx context.Context, realm string, req RegisterRequest) (*RegisterResult, error) {
	policy, ok := m.realms[realm]
	if !ok {
		return nil, apperrors.ErrUnknownRealm
	}
	if !policy.AllowRegistration {
		return nil, apperrors.ErrRegistrationClosed
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := m.repos.Users.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperrors.ErrEmailTaken
	}

	passwordHash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] HashPassword")
	}

	user := &users.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         users.Role(policy.DefaultRole),
		CreatedAt:    m.nowTime(),
	}
	if err := m.repos.Users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] Users.Upsert")
	}

	result := &RegisterResult{User: user}

	if realm == config.RealmStorefront {
		profile := &profiles.Profile{
			UserID:  user.ID,
			Name:    req.Name,
			Phone:   req.Phone,
			Address: utils.Value(req.Address),
		}
		if err := m.repos.Profiles.Create(ctx, profile); err != nil {
			m.log.Error().Err(err).Str("user_id", user.ID).Msg("profile write failed after account creation")
			return result, errors.Wrap(err, "[Manager.Register] Profiles.Create")
		}
		result.Profile = profile
	}

	return result, nil
}

// Logout destroys a session. It is idempotent: logging out an unknown or
// already-destroyed session returns nil.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	session, err := m.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Manager.Logout] Sessions.Get")
	}

	m.idle.Stop(sessionID)

	if err := m.repos.Sessions.Delete(ctx, sessionID); err != nil {
		return errors.Wrap(err, "[Manager.Logout] Sessions.Delete")
	}

	m.tokens.InvalidateRefreshToken(session.RefreshToken)
	if session.AccessToken != "" {
		_ = m.tokens.RevokeAccessToken(session.AccessToken)
	}

	m.publish(EventSignedOut, session)
	return nil
}

// Refresh rotates the session's token pair in place.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*sessions.Session, error) {
	session, err := m.getLiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := m.repos.Users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] Users.GetByID")
	}

	pair, err := m.tokens.Rotate(session.RefreshToken, user)
	if err != nil {
		return nil, err
	}

	session.AccessToken = pair.AccessToken
	session.RefreshToken = pair.RefreshToken
	session.TokenExpiry = pair.TokenExpiry
	if err := m.repos.Sessions.Upsert(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] Sessions.Upsert")
	}

	m.publish(EventTokenRefreshed, session)
	return session, nil
}

// AuthenticateAccessToken validates a bearer access token and returns the
// identity snapshot it carries. Expired and revoked tokens are rejected. The
// returned session has no ID: it represents the token, not a stored session,
// and cannot be touched or refreshed.
func (m *Manager) AuthenticateAccessToken(_ context.Context, raw string) (*sessions.Session, error) {
	claims, err := m.tokens.ParseAccess(raw)
	if err != nil {
		return nil, err
	}

	session := &sessions.Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   users.Role(claims.Role),
		Realm:  claims.Realm,
	}
	if claims.ExpiresAt != nil {
		session.TokenExpiry = claims.ExpiresAt.Time
	}
	return session, nil
}

// GetSession returns a live session. Hard-expired sessions are removed and
// reported as ErrSessionExpired.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	return m.getLiveSession(ctx, sessionID)
}

// Touch records activity on a session: it refreshes the stored
// last-activity timestamp and resets the idle countdown.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	if err := m.repos.Sessions.Touch(ctx, sessionID, m.nowTime()); err != nil {
		return err
	}
	m.idle.Touch(sessionID)
	return nil
}

// RequestPasswordReset issues a one-time reset token delivered via the
// mailer. Unknown emails are not reported to the caller.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := m.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		m.log.Debug().Str("email", email).Msg("password reset requested for unknown email")
		return nil
	}

	resetToken := uuid.New().String()
	m.resetMu.Lock()
	m.resets[resetToken] = resetRecord{
		userID:    user.ID,
		email:     user.Email,
		expiresAt: m.nowTime().Add(m.resetTTL),
	}
	m.resetMu.Unlock()

	if err := m.mailer.SendPasswordReset(ctx, email, resetToken); err != nil {
		return errors.Wrap(err, "[Manager.RequestPasswordReset] SendPasswordReset")
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (m *Manager) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	m.resetMu.Lock()
	rec, ok := m.resets[resetToken]
	if ok {
		delete(m.resets, resetToken)
	}
	m.resetMu.Unlock()

	if !ok || rec.expiresAt.Before(m.nowTime()) {
		return apperrors.ErrInvalidResetToken
	}

	return m.setPassword(ctx, rec.userID, newPassword)
}

// UpdatePassword changes the password for the session's user.
func (m *Manager) UpdatePassword(ctx context.Context, sessionID, newPassword string) error {
	session, err := m.getLiveSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	return m.setPassword(ctx, session.UserID, newPassword)
}

// Subscribe returns a channel of auth-state changes and a cancel function.
// Slow subscribers drop events rather than block state transitions.
func (m *Manager) Subscribe() (<-chan StateChange, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan StateChange, 16)
	m.subs[id] = ch

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// CleanupExpired removes hard-expired sessions and stale token state.
func (m *Manager) CleanupExpired(ctx context.Context) error {
	m.tokens.CleanupRevokedTokens()

	m.resetMu.Lock()
	now := m.nowTime()
	for tok, rec := range m.resets {
		if rec.expiresAt.Before(now) {
			delete(m.resets, tok)
		}
	}
	m.resetMu.Unlock()

	return m.repos.Sessions.DeleteExpired(ctx, m.nowTime())
}

// Close cancels all idle timers and closes subscriber channels. No timeout
// logouts fire after Close returns.
func (m *Manager) Close() {
	m.idle.Close()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) createSession(ctx context.Context, user *users.User, realm string, policy config.RealmPolicy) (*sessions.Session, error) {
	pair, err := m.tokens.GeneratePair(user, realm)
	if err != nil {
		return nil, errors.Wrap(err, "tokens.GeneratePair")
	}

	ttl := policy.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	now := m.nowTime()
	session := &sessions.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		Realm:        realm,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenExpiry:  pair.TokenExpiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
	}

	if err := m.repos.Sessions.Upsert(ctx, session); err != nil {
		return nil, errors.Wrap(err, "Sessions.Upsert")
	}

	m.idle.Start(session.ID, policy.IdleTimeout)
	m.publish(EventSignedIn, session)

	return session, nil
}

func (m *Manager) getLiveSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	session, err := m.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(m.nowTime()) {
		m.idle.Stop(sessionID)
		_ = m.repos.Sessions.Delete(ctx, sessionID)
		return nil, apperrors.ErrSessionExpired
	}
	return session, nil
}

func (m *Manager) setPassword(ctx context.Context, userID, newPassword string) error {
	user, err := m.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "Users.GetByID")
	}
	passwordHash, err := users.HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, "HashPassword")
	}
	user.PasswordHash = passwordHash
	if err := m.repos.Users.Upsert(ctx, user); err != nil {
		return errors.Wrap(err, "Users.Upsert")
	}
	return nil
}

// handleIdleExpiry runs on the idle monitor's timer goroutine when a session
// sits untouched past its realm's idle timeout.
func (m *Manager) handleIdleExpiry(sessionID string) {
	ctx := context.Background()

	session, err := m.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}

	if err := m.repos.Sessions.Delete(ctx, sessionID); err != nil {
		m.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete idle session")
	}
	m.tokens.InvalidateRefreshToken(session.RefreshToken)
	if session.AccessToken != "" {
		_ = m.tokens.RevokeAccessToken(session.AccessToken)
	}

	m.log.Info().
		Str("session_id", sessionID).
		Str("email", session.Email).
		Str("realm", session.Realm).
		Msg("session timed out after inactivity")

	m.publish(EventTimedOut, session)
}

func (m *Manager) publish(eventType EventType, session *sessions.Session) {
	event := StateChange{
		Type:      eventType,
		SessionID: session.ID,
		UserID:    session.UserID,
		Email:     session.Email,
		Realm:     session.Realm,
		At:        m.nowTime(),
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
			m.log.Warn().Str("type", string(eventType)).Msg("dropping auth event for slow subscriber")
		}
	}
}
