package linking

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/security/password"
	"github.com/dropDatabas3/momtrack/internal/store/memory"
	"github.com/dropDatabas3/momtrack/internal/tokens"
)

const frontend = "http://app.test"

// identitySpy delega en un Provider real y permite forzar fallas.
type identitySpy struct {
	*identity.Provider
	deleteErr error
	deletes   atomic.Int32
	signOuts  atomic.Int32
}

func (s *identitySpy) DeleteIdentity(ctx context.Context, uid string) error {
	s.deletes.Add(1)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Provider.DeleteIdentity(ctx, uid)
}

func (s *identitySpy) SignOut(ctx context.Context, sid string) error {
	s.signOuts.Add(1)
	return s.Provider.SignOut(ctx, sid)
}

type oauthStub struct {
	urlErr      error
	exchangeErr error
	tok         *huggingface.Token
	scopes      []string
}

func (o *oauthStub) BuildAuthorizationURL(_ context.Context, scope string) (string, error) {
	o.scopes = append(o.scopes, scope)
	if o.urlErr != nil {
		return "", o.urlErr
	}
	return "https://huggingface.co/oauth/authorize?state=x", nil
}

func (o *oauthStub) ExchangeCode(_ context.Context, scope, code, state string) (*huggingface.Token, error) {
	o.scopes = append(o.scopes, scope)
	if o.exchangeErr != nil {
		return nil, o.exchangeErr
	}
	return o.tok, nil
}

type fixture struct {
	linker  *Linker
	ids     *identitySpy
	oauth   *oauthStub
	conn    *memory.Conn
	repo    *tokens.Repository
	tracker *Tracker
	markers *MarkerCodec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := memory.New()
	params := password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}
	prov := identity.New(identity.Deps{
		Accounts:   conn.Accounts(),
		Documents:  conn.Documents(),
		Sessions:   cache.NewMemory("", time.Minute),
		SessionTTL: time.Hour,
		HashParams: &params,
	})
	repo := tokens.New(conn.Documents(), nil)
	tracker := NewTracker(repo, cache.NewMemory("", time.Minute), time.Minute)
	tracker.Attach(prov)

	f := &fixture{
		ids:     &identitySpy{Provider: prov},
		oauth:   &oauthStub{tok: &huggingface.Token{AccessToken: "hf_access", TokenType: "bearer"}},
		conn:    conn,
		repo:    repo,
		tracker: tracker,
		markers: NewMarkerCodec([]byte("0123456789abcdef0123456789abcdef"), 15*time.Minute),
	}
	f.linker = New(Deps{
		Identity:    f.ids,
		OAuth:       f.oauth,
		Tokens:      repo,
		Tracker:     tracker,
		Markers:     f.markers,
		FrontendURL: frontend + "/",
	})
	return f
}

func (f *fixture) register(t *testing.T) *RegisterResult {
	t.Helper()
	res, err := f.linker.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	return res
}

func query(t *testing.T, raw string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Scheme + "://" + u.Host + u.Path, u.Query()
}

func TestRegisterInput_Validate(t *testing.T) {
	cases := []struct {
		in  RegisterInput
		msg string
	}{
		{RegisterInput{Email: "", Password: "secret1"}, "Please fill in all required fields"},
		{RegisterInput{Email: "a@b.co", Password: ""}, "Please fill in all required fields"},
		{RegisterInput{Email: "a@b.co", Password: "12345"}, "Password must be at least 6 characters"},
		{RegisterInput{Email: "ab.co", Password: "123456"}, "Please enter a valid email address"},
		{RegisterInput{Email: "a@bco", Password: "123456"}, "Please enter a valid email address"},
	}
	for _, c := range cases {
		err := c.in.Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		require.Equal(t, c.msg, ve.Message)
	}
	require.NoError(t, RegisterInput{Email: "a@b.co", Password: "123456"}.Validate())
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)

	require.Equal(t, PhaseAwaitingProviderRedirect, res.Phase)
	require.NotEmpty(t, res.Session.ID)
	require.Equal(t, "ana@example.com", res.User.Email)
	require.Equal(t, []string{StateScope(res.Session.ID)}, f.oauth.scopes)

	m, err := f.markers.Decode(res.Marker)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, m.UID)
	require.Equal(t, "Ana", m.Name)
}

func TestRegister_URLFailureDeletesIdentity(t *testing.T) {
	f := newFixture(t)
	f.oauth.urlErr = &huggingface.ConfigurationError{Missing: []string{"client_id"}}

	_, err := f.linker.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "secret1"})
	var fail *Failure
	require.ErrorAs(t, err, &fail)
	require.Equal(t, ConfigMissing, fail.Kind)
	require.EqualValues(t, 1, f.ids.deletes.Load())

	_, err = f.conn.Accounts().GetByEmail(context.Background(), "ana@example.com")
	require.Error(t, err)
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	_, err := f.linker.Register(context.Background(), RegisterInput{Email: "ANA@example.com", Password: "secret1"})
	require.ErrorIs(t, err, identity.ErrEmailTaken)
}

func TestHandleCallback_RegistrationSuccess(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: res.Marker, Code: "c", State: "s",
	})
	require.Equal(t, PhaseLinked, out.Phase)
	require.True(t, out.Registration)
	require.Nil(t, out.Failure)

	base, q := query(t, out.RedirectURL)
	require.Equal(t, frontend+"/dashboard", base)
	require.Equal(t, "true", q.Get("huggingface_connected"))
	require.Equal(t, "true", q.Get("registration_success"))

	tok, err := f.repo.Load(context.Background(), res.User.ID)
	require.NoError(t, err)
	require.Equal(t, "hf_access", tok.AccessToken)
	require.True(t, f.tracker.Status(context.Background(), res.User.ID))
}

func TestHandleCallback_RegistrationRollbackOnCsrf(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.oauth.exchangeErr = &huggingface.SecurityError{}

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: res.Marker, Code: "c", State: "forged",
	})
	require.Equal(t, PhaseRolledBack, out.Phase)
	require.True(t, out.EndSession)
	require.Equal(t, CsrfInvalid, out.Failure.Kind)
	require.EqualValues(t, 1, f.ids.deletes.Load())

	base, q := query(t, out.RedirectURL)
	require.Equal(t, frontend+"/", base)
	require.Contains(t, q.Get("registration_error"), "Security validation failed")

	_, err := f.ids.Current(context.Background(), res.Session.ID)
	require.ErrorIs(t, err, identity.ErrNoSession)
}

func TestHandleCallback_RollbackFallsBackToSignOut(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.ids.deleteErr = errors.New("store down")

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: res.Marker, Error: "access_denied",
	})
	require.Equal(t, PhaseRolledBack, out.Phase)
	require.Equal(t, ProviderDenied, out.Failure.Kind)
	require.EqualValues(t, 1, f.ids.signOuts.Load())

	_, q := query(t, out.RedirectURL)
	require.Equal(t, "access_denied", q.Get("registration_error"))
}

func TestHandleCallback_RollbackToleratesMissingIdentity(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	// la sesión sigue resolviendo hasta que la cuenta desaparece, así que
	// el borrado previo se simula con deleteErr = ErrNotFound
	f.ids.deleteErr = identity.ErrNotFound

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: res.Marker, Code: "c",
	})
	require.Equal(t, PhaseRolledBack, out.Phase)
	require.Equal(t, MissingParams, out.Failure.Kind)
	require.EqualValues(t, 1, f.ids.signOuts.Load())
}

func TestHandleCallback_ReconnectFailureReportsOnly(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.oauth.exchangeErr = &huggingface.TokenExchangeError{Grant: huggingface.GrantAuthorizationCode, Status: 400, Code: "invalid_grant"}

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Code: "c", State: "s",
	})
	require.Equal(t, PhaseReported, out.Phase)
	require.False(t, out.EndSession)
	require.Zero(t, f.ids.deletes.Load())

	base, q := query(t, out.RedirectURL)
	require.Equal(t, frontend+"/dashboard", base)
	require.True(t, strings.HasPrefix(q.Get("huggingface_error"), "Authorization code is invalid or has expired"))

	_, err := f.ids.Current(context.Background(), res.Session.ID)
	require.NoError(t, err)
}

func TestHandleCallback_MarkerForAnotherAccountIsIgnored(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	other, err := f.markers.Encode(Marker{Email: "x@y.z", UID: "someone-else", CreatedAt: time.Now()})
	require.NoError(t, err)
	f.oauth.exchangeErr = &huggingface.NetworkError{Op: "exchange", Err: errors.New("dial tcp")}

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: other, Code: "c", State: "s",
	})
	require.Equal(t, PhaseReported, out.Phase)
	require.Zero(t, f.ids.deletes.Load())
	require.Equal(t, msgNetwork, out.Failure.Message)
}

func TestHandleCallback_SaveFailure(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.conn.FailWrites = errors.New("disk full")

	out := f.linker.HandleCallback(context.Background(), CallbackInput{
		SessionID: res.Session.ID, Marker: res.Marker, Code: "c", State: "s",
	})
	require.Equal(t, PhaseRolledBack, out.Phase)
	require.Equal(t, StorageError, out.Failure.Kind)
}

func TestHandleCallback_NotSignedIn(t *testing.T) {
	f := newFixture(t)
	out := f.linker.HandleCallback(context.Background(), CallbackInput{Code: "c", State: "s"})
	require.Equal(t, PhaseReported, out.Phase)
	require.Equal(t, NotSignedIn, out.Failure.Kind)
	require.Empty(t, f.oauth.scopes)
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)

	u, err := f.linker.Connect(context.Background(), res.Session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, u)

	_, err = f.linker.Connect(context.Background(), "nope")
	var fail *Failure
	require.ErrorAs(t, err, &fail)
	require.Equal(t, NotSignedIn, fail.Kind)
}
