// Package handler is the HTTP surface of the login, external linking, and
// logout flows. It parses and renders; all decisions live in the services.
package handler

import (
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/auth/service"
	"tenant-identity-provider/internal/interaction"
	"tenant-identity-provider/internal/tenant"
)

//go:embed templates/*.html
var templateFS embed.FS

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "idp_session"

// Handler routes browser traffic into the auth services.
type Handler struct {
	login     *service.LoginService
	external  *service.ExternalService
	logout    *service.LogoutService
	templates *template.Template
	secure    bool
}

// NewHandler returns a Handler over the given services. secure controls the
// Secure flag on the session cookie; set it behind TLS.
func NewHandler(
	login *service.LoginService,
	external *service.ExternalService,
	logout *service.LogoutService,
	secure bool,
) *Handler {
	return &Handler{
		login:     login,
		external:  external,
		logout:    logout,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		secure:    secure,
	}
}

// Register mounts the auth routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/auth/login", h.getLogin).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.postLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", h.getRegister).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.postRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/external", h.getExternal).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", h.getCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/external/register", h.postExternalRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.getLogout).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.postLogout).Methods(http.MethodPost)
	r.HandleFunc("/connect/endsession", h.getEndSession).Methods(http.MethodGet)
}

type loginPage struct {
	ReturnURL         string
	ReturnURLEscaped  string
	TenantID          string
	Username          string
	Error             string
	ExternalProviders interface{}
}

// tenantContext resolves the tenant for a request: an explicit tenant query
// parameter wins, otherwise the authorization context embedded in the return
// URL is used.
func tenantContext(r *http.Request, returnURL string) (*tenant.Context, string) {
	if id := r.FormValue("tenant"); id != "" {
		return &tenant.Context{ID: id, Identifier: id}, id
	}
	if actx := interaction.ParseAuthorizationContext(returnURL); actx != nil && actx.Tenant != nil {
		return actx.Tenant, actx.Tenant.Identifier
	}
	return nil, ""
}

func (h *Handler) getLogin(w http.ResponseWriter, r *http.Request) {
	returnURL := r.URL.Query().Get("returnUrl")
	tc, tenantID := tenantContext(r, returnURL)

	p, err := h.login.BeginLogin(r.Context(), returnURL, tc)
	if err != nil {
		if errors.Is(err, service.ErrSchemeNotConfigured) {
			http.Error(w, "authentication is misconfigured for this tenant", http.StatusInternalServerError)
			return
		}
		h.serverError(w, err)
		return
	}
	if p.Challenge != nil {
		http.Redirect(w, r, p.Challenge.RedirectURL, http.StatusFound)
		return
	}
	h.render(w, "login.html", loginPage{
		ReturnURL:         p.ReturnURL,
		ReturnURLEscaped:  url.QueryEscape(p.ReturnURL),
		TenantID:          tenantID,
		Username:          p.Username,
		Error:             r.URL.Query().Get("error"),
		ExternalProviders: p.ExternalProviders,
	})
}

func (h *Handler) postLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	attempt := domain.LoginAttempt{
		Username:  r.PostFormValue("username"),
		Password:  r.PostFormValue("password"),
		ReturnURL: r.PostFormValue("returnUrl"),
		TenantID:  r.PostFormValue("tenant"),
	}
	res, err := h.login.SubmitLogin(r.Context(), attempt)
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.finishLogin(w, r, res, attempt.TenantID)
}

func (h *Handler) getRegister(w http.ResponseWriter, r *http.Request) {
	returnURL := r.URL.Query().Get("returnUrl")
	h.render(w, "register.html", loginPage{
		ReturnURL:        returnURL,
		ReturnURLEscaped: url.QueryEscape(returnURL),
	})
}

func (h *Handler) postRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	attempt := domain.LoginAttempt{
		Username:  r.PostFormValue("username"),
		Password:  r.PostFormValue("password"),
		ReturnURL: r.PostFormValue("returnUrl"),
		TenantID:  r.PostFormValue("tenant"),
	}
	res, err := h.login.RegisterLocal(r.Context(), attempt)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if res.Outcome == domain.LoginOutcomeRedirect {
		h.setSessionCookie(w, res.SessionToken)
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}
	username := ""
	returnURL := attempt.ReturnURL
	if res.Presentation != nil {
		username = res.Presentation.Username
		returnURL = res.Presentation.ReturnURL
	}
	h.render(w, "register.html", loginPage{
		ReturnURL:        returnURL,
		ReturnURLEscaped: url.QueryEscape(returnURL),
		Username:         username,
		Error:            res.Failure,
	})
}

func (h *Handler) getExternal(w http.ResponseWriter, r *http.Request) {
	scheme := r.URL.Query().Get("scheme")
	returnURL := r.URL.Query().Get("returnUrl")
	d, err := h.external.BeginExternalChallenge(r.Context(), scheme, returnURL)
	if err != nil {
		if errors.Is(err, service.ErrUnknownProvider) {
			http.Error(w, "unknown provider", http.StatusBadRequest)
			return
		}
		h.serverError(w, err)
		return
	}
	http.Redirect(w, r, d.RedirectURL, http.StatusFound)
}

func (h *Handler) getCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.external.CompleteExternalLogin(r.Context(), q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		h.serverError(w, err)
		return
	}
	switch res.Outcome {
	case domain.ExternalOutcomeSignedIn:
		h.setSessionCookie(w, res.SessionToken)
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
	case domain.ExternalOutcomeNeedsRegistration:
		h.render(w, "external_register.html", externalRegisterPage{
			StateID:   res.StateID,
			ReturnURL: res.ReturnURL,
			Username:  res.SuggestedUsername,
		})
	default:
		http.Redirect(w, r, "/auth/login?error="+url.QueryEscape(res.Reason), http.StatusFound)
	}
}

type externalRegisterPage struct {
	StateID   string
	ReturnURL string
	Username  string
	Error     string
}

func (h *Handler) postExternalRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	attempt := domain.ExternalRegisterAttempt{
		StateID:   r.PostFormValue("state"),
		Username:  r.PostFormValue("username"),
		ReturnURL: r.PostFormValue("returnUrl"),
	}
	res, err := h.external.RegisterExternal(r.Context(), attempt)
	if err != nil {
		h.serverError(w, err)
		return
	}
	switch res.Outcome {
	case domain.LoginOutcomeRedirect:
		h.setSessionCookie(w, res.SessionToken)
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
	case domain.LoginOutcomeUsernameTaken:
		h.render(w, "external_register.html", externalRegisterPage{
			StateID:   attempt.StateID,
			ReturnURL: attempt.ReturnURL,
			Username:  attempt.Username,
			Error:     res.Failure,
		})
	default:
		// Link failed or state expired; restart the login flow.
		http.Redirect(w, r, "/auth/login?error="+url.QueryEscape(res.Failure), http.StatusFound)
	}
}

func (h *Handler) getLogout(w http.ResponseWriter, r *http.Request) {
	h.render(w, "logout.html", struct{ LogoutID string }{r.URL.Query().Get("logoutId")})
}

func (h *Handler) postLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}
	target, err := h.logout.Logout(r.Context(), token, r.PostFormValue("logoutId"))
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.clearSessionCookie(w)
	if target.Default {
		h.render(w, "logged_out.html", struct{ RedirectURL string }{target.URL})
		return
	}
	http.Redirect(w, r, target.URL, http.StatusFound)
}

// getEndSession is the relying party's end-session entry point. It records
// the logout context and hands the browser to the confirmation page.
func (h *Handler) getEndSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logoutID := h.logout.PrepareLogout(r.Context(), q.Get("client_id"), q.Get("post_logout_redirect_uri"))
	http.Redirect(w, r, "/auth/logout?logoutId="+url.QueryEscape(logoutID), http.StatusFound)
}

func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, res *domain.LoginResult, tenantID string) {
	if res.Outcome == domain.LoginOutcomeRedirect {
		h.setSessionCookie(w, res.SessionToken)
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}
	page := loginPage{TenantID: tenantID, Error: res.Failure}
	if res.Presentation != nil {
		page.ReturnURL = res.Presentation.ReturnURL
		page.ReturnURLEscaped = url.QueryEscape(res.Presentation.ReturnURL)
		page.Username = res.Presentation.Username
		page.ExternalProviders = res.Presentation.ExternalProviders
	}
	h.renderStatus(w, http.StatusUnprocessableEntity, "login.html", page)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	h.renderStatus(w, http.StatusOK, name, data)
}

func (h *Handler) renderStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("handler: render %s: %v", name, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	log.Printf("handler: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
