// Package linking orquesta la vinculación de una cuenta con Hugging Face.
//
// Registro: alta de identidad, sesión, marker de registro y redirect al
// proveedor. Callback: canje del code y guardado del token. Si el callback
// falla y el marker indica registro, la cuenta recién creada se borra
// (transacción compensatoria); si no hay marker, solo se reporta.
package linking

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dropDatabas3/momtrack/internal/audit"
	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/metrics"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/security/token"
)

// Phase es la fase de un intento de linking.
type Phase string

const (
	PhaseCreatingIdentity         Phase = "CREATING_IDENTITY"
	PhaseAwaitingProviderRedirect Phase = "AWAITING_PROVIDER_REDIRECT"
	PhaseProcessingCallback       Phase = "PROCESSING_CALLBACK"
	PhaseLinked                   Phase = "LINKED"
	PhaseRolledBack               Phase = "ROLLED_BACK"
	PhaseReported                 Phase = "REPORTED"
)

// IdentityProvider es lo que el orquestador usa del identity provider.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, name string) (identity.User, error)
	StartSession(ctx context.Context, u identity.User) (identity.Session, error)
	Current(ctx context.Context, sid string) (identity.Session, error)
	DeleteIdentity(ctx context.Context, uid string) error
	SignOut(ctx context.Context, sid string) error
}

// OAuthClient es el subconjunto del cliente de Hugging Face que se necesita.
type OAuthClient interface {
	BuildAuthorizationURL(ctx context.Context, scope string) (string, error)
	ExchangeCode(ctx context.Context, scope, code, state string) (*huggingface.Token, error)
}

// TokenSaver persiste el token obtenido.
type TokenSaver interface {
	Save(ctx context.Context, uid string, tok *huggingface.Token) error
}

// ConnectionRefresher recalcula el flag de conexión cacheado.
type ConnectionRefresher interface {
	Refresh(ctx context.Context, uid string) bool
}

// Deps contiene las dependencias del Linker.
type Deps struct {
	Identity    IdentityProvider
	OAuth       OAuthClient
	Tokens      TokenSaver
	Tracker     ConnectionRefresher
	Markers     *MarkerCodec
	FrontendURL string
}

// Linker es el orquestador. No guarda estado propio entre requests: el
// estado del flujo vive en la sesión, el state store y la cookie del marker.
type Linker struct {
	identity    IdentityProvider
	oauth       OAuthClient
	tokens      TokenSaver
	tracker     ConnectionRefresher
	markers     *MarkerCodec
	frontendURL string
	tracer      trace.Tracer
}

func New(d Deps) *Linker {
	return &Linker{
		identity:    d.Identity,
		oauth:       d.OAuth,
		tokens:      d.Tokens,
		tracker:     d.Tracker,
		markers:     d.Markers,
		frontendURL: strings.TrimRight(d.FrontendURL, "/"),
		tracer:      otel.Tracer("github.com/dropDatabas3/momtrack/internal/linking"),
	}
}

// StateScope deriva el namespace del CSRF state a partir de la sesión.
func StateScope(sid string) string {
	return "oauth:" + token.SHA256Base64URL(sid)
}

// ─── Registro ───

// RegisterInput son los datos del formulario de registro.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RegisterResult es lo que el controller necesita para responder.
type RegisterResult struct {
	User        identity.User
	Session     identity.Session
	Marker      string // valor firmado de la cookie de marker
	RedirectURL string
	Phase       Phase
}

// ValidationError es un dato de registro inválido.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// Validate aplica las reglas del formulario de registro.
func (in RegisterInput) Validate() error {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return &ValidationError{Message: "Please fill in all required fields"}
	}
	if len(in.Password) < 6 {
		return &ValidationError{Message: "Password must be at least 6 characters"}
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return &ValidationError{Message: "Please enter a valid email address"}
	}
	return nil
}

// Register crea la cuenta, abre sesión, emite el marker y arma el redirect al
// proveedor. Si el redirect no se puede construir, la cuenta se borra antes de volver.
func (l *Linker) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Linker.Register"), logger.Flow("registration"))

	if err := in.Validate(); err != nil {
		return nil, err
	}

	log.Debug("phase", logger.Phase(string(PhaseCreatingIdentity)))
	u, err := l.identity.SignUp(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.UserID(u.ID))

	sess, err := l.identity.StartSession(ctx, u)
	if err != nil {
		l.discardIdentity(ctx, u.ID, "")
		return nil, err
	}

	marker, err := l.markers.Encode(Marker{Name: u.Name, Email: u.Email, UID: u.ID, CreatedAt: u.CreatedAt})
	if err != nil {
		log.Error("marker encode failed", logger.Err(err))
		l.discardIdentity(ctx, u.ID, sess.ID)
		return nil, err
	}

	redirect, err := l.oauth.BuildAuthorizationURL(ctx, StateScope(sess.ID))
	if err != nil {
		f := Classify(err)
		log.Warn("authorization url failed, discarding new identity", logger.Err(err))
		l.discardIdentity(ctx, u.ID, sess.ID)
		metrics.LinkingOutcomes.WithLabelValues("rolled_back").Inc()
		return nil, f
	}

	log.Info("registration awaiting provider redirect", logger.Phase(string(PhaseAwaitingProviderRedirect)))
	return &RegisterResult{
		User:        u,
		Session:     sess,
		Marker:      marker,
		RedirectURL: redirect,
		Phase:       PhaseAwaitingProviderRedirect,
	}, nil
}

// discardIdentity es la compensación síncrona previa a la navegación.
func (l *Linker) discardIdentity(ctx context.Context, uid, sid string) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Linker.discardIdentity"), logger.UserID(uid))
	if err := l.identity.DeleteIdentity(ctx, uid); err != nil && !errors.Is(err, identity.ErrNotFound) {
		log.Error("identity delete failed", logger.Err(err))
	}
	if sid != "" {
		if err := l.identity.SignOut(ctx, sid); err != nil {
			log.Warn("sign out failed", logger.Err(err))
		}
	}
}

// ─── Reconexión ───

// Connect arma el redirect al proveedor para un usuario ya logueado (sin marker).
func (l *Linker) Connect(ctx context.Context, sid string) (string, error) {
	sess, err := l.identity.Current(ctx, sid)
	if err != nil {
		return "", &Failure{Kind: NotSignedIn, Message: msgNotSignedIn, Cause: err}
	}
	redirect, err := l.oauth.BuildAuthorizationURL(ctx, StateScope(sess.ID))
	if err != nil {
		return "", Classify(err)
	}
	logger.From(ctx).Info("reconnect awaiting provider redirect",
		logger.Layer("service"), logger.Op("Linker.Connect"), logger.UserID(sess.User.ID), logger.Flow("reconnect"))
	return redirect, nil
}

// ─── Callback ───

// CallbackInput son los parámetros del callback más el contexto del browser.
type CallbackInput struct {
	SessionID        string
	Marker           string // valor crudo de la cookie, puede estar vacío
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Outcome es el resultado del callback. Siempre trae RedirectURL.
type Outcome struct {
	Phase        Phase
	UserID       string
	Registration bool
	Failure      *Failure
	RedirectURL  string
	// EndSession indica que la cookie de sesión debe borrarse (cuenta revertida).
	EndSession bool
}

// HandleCallback procesa el regreso desde el proveedor.
func (l *Linker) HandleCallback(ctx context.Context, in CallbackInput) *Outcome {
	ctx, span := l.tracer.Start(ctx, "linking.HandleCallback")
	defer span.End()
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Linker.HandleCallback"))

	sess, err := l.identity.Current(ctx, in.SessionID)
	if err != nil {
		f := &Failure{Kind: NotSignedIn, Message: msgNotSignedIn, Cause: err}
		log.Info("callback without session")
		return l.finish(ctx, span, &Outcome{
			Phase:       PhaseReported,
			Failure:     f,
			RedirectURL: l.url("/", "auth_error", f.Message),
		})
	}
	uid := sess.User.ID
	log = log.With(logger.UserID(uid))

	registration := false
	if in.Marker != "" {
		m, err := l.markers.Decode(in.Marker)
		switch {
		case err != nil:
			log.Warn("ignoring invalid registration marker", logger.Err(err))
		case m.UID != uid:
			log.Warn("ignoring registration marker for another account")
		default:
			registration = true
		}
	}
	flow := "reconnect"
	if registration {
		flow = "registration"
	}
	log = log.With(logger.Flow(flow), logger.Phase(string(PhaseProcessingCallback)))
	span.SetAttributes(attribute.String("linking.flow", flow))

	var f *Failure
	switch {
	case in.Error != "":
		f = denied(in.Error, in.ErrorDescription)
	case in.Code == "" || in.State == "":
		f = &Failure{Kind: MissingParams, Message: msgMissingParams}
	default:
		tok, err := l.oauth.ExchangeCode(ctx, StateScope(sess.ID), in.Code, in.State)
		if err == nil {
			err = l.tokens.Save(ctx, uid, tok)
		}
		if err != nil {
			f = Classify(err)
		}
	}

	if f != nil {
		log.Warn("huggingface linking failed", logger.String("kind", f.Kind.String()), logger.Err(f))
		if registration {
			return l.finish(ctx, span, l.rollback(ctx, sess, f))
		}
		return l.finish(ctx, span, &Outcome{
			Phase:       PhaseReported,
			UserID:      uid,
			Failure:     f,
			RedirectURL: l.url("/dashboard", "huggingface_error", f.Message),
		})
	}

	if l.tracker != nil {
		l.tracker.Refresh(ctx, uid)
	}
	log.Info("huggingface linked", logger.Phase(string(PhaseLinked)))

	q := url.Values{}
	q.Set("huggingface_connected", "true")
	if registration {
		q.Set("registration_success", "true")
	} else {
		q.Set("registration_success", "false")
	}
	return l.finish(ctx, span, &Outcome{
		Phase:        PhaseLinked,
		UserID:       uid,
		Registration: registration,
		RedirectURL:  l.frontendURL + "/dashboard?" + q.Encode(),
	})
}

// rollback es la transacción compensatoria: borrar la identidad recién
// creada y, si eso falla, al menos cerrar la sesión. Cada paso tolera que
// la identidad o la sesión ya no existan.
func (l *Linker) rollback(ctx context.Context, sess identity.Session, f *Failure) *Outcome {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Linker.rollback"), logger.UserID(sess.User.ID))

	if err := l.identity.DeleteIdentity(ctx, sess.User.ID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			log.Info("identity already gone")
		} else {
			log.Error("identity delete failed, signing out instead", logger.Err(err))
		}
		if err := l.identity.SignOut(ctx, sess.ID); err != nil {
			log.Error("sign out failed", logger.Err(err))
		}
	} else {
		log.Info("registration rolled back")
	}

	msg := f.Message
	if msg == "" {
		msg = msgRollback
	}
	return &Outcome{
		Phase:        PhaseRolledBack,
		UserID:       sess.User.ID,
		Registration: true,
		Failure:      f,
		RedirectURL:  l.url("/", "registration_error", msg),
		EndSession:   true,
	}
}

func (l *Linker) finish(ctx context.Context, span trace.Span, o *Outcome) *Outcome {
	outcome := "linked"
	switch o.Phase {
	case PhaseRolledBack:
		outcome = "rolled_back"
	case PhaseReported:
		outcome = "reported"
	}
	metrics.LinkingOutcomes.WithLabelValues(outcome).Inc()
	audit.Log(ctx, "linking."+outcome, logger.UserID(o.UserID), logger.Bool("registration", o.Registration))
	span.SetAttributes(attribute.String("linking.outcome", outcome))
	if o.Failure != nil {
		span.SetStatus(codes.Error, o.Failure.Kind.String())
	}
	return o
}

func (l *Linker) url(path, key, msg string) string {
	q := url.Values{}
	q.Set(key, msg)
	return l.frontendURL + path + "?" + q.Encode()
}
