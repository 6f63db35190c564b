package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/auth"
	"github.com/frahmantamala/access-management/internal/core/store/storetest"
	"github.com/frahmantamala/access-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingDenials struct {
	denied []string
}

func (c *countingDenials) RecordDenial(resource, action string) {
	c.denied = append(c.denied, resource+":"+action)
}

type brokenChecker struct{}

func (brokenChecker) HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	return false, errs.NewInternalError("failed to load permissions", errors.New("db down"))
}

var _ = Describe("Auth HTTP surface", func() {
	var (
		h             *harness
		router        *chi.Mux
		authenticator *auth.Authenticator
		denials       *countingDenials
	)

	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		req.RemoteAddr = "198.51.100.7:52100"
		req.Header.Set("User-Agent", "handler-test")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	errorCode := func(w *httptest.ResponseRecorder) string {
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		return body.Error.Code
	}

	login := func(email, password string) string {
		w := do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
		Expect(w.Code).To(Equal(http.StatusOK))
		var res auth.LoginResult
		Expect(json.NewDecoder(w.Body).Decode(&res)).To(Succeed())
		return res.Token
	}

	BeforeEach(func() {
		h = newHarness()
		denials = &countingDenials{}
		base := transport.NewBaseHandler(quietLogger)
		handler := auth.NewHandler(base, h.service)
		authenticator = auth.NewAuthenticator(base, h.sessions, h.evaluator, denials)

		router = chi.NewRouter()
		router.Post("/auth/register", handler.Register)
		router.Post("/auth/login", handler.Login)
		router.Group(func(r chi.Router) {
			r.Use(authenticator.Authenticate)
			r.Post("/auth/logout", handler.Logout)
			r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
				identity, _ := errs.IdentityFromContext(r.Context())
				base.WriteJSON(w, http.StatusOK, identity)
			})
			r.With(authenticator.RequirePermission("users", "delete")).
				Delete("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				})
		})
	})

	Describe("POST /auth/register", func() {
		It("answers 201 with the public user", func() {
			w := do(http.MethodPost, "/auth/register", `{"email":"new@example.com","password":"pw","nom":"Hopper","prenom":"Grace"}`, "")
			Expect(w.Code).To(Equal(http.StatusCreated))

			var resp map[string]interface{}
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			user := resp["user"].(map[string]interface{})
			Expect(user).To(HaveKeyWithValue("email", "new@example.com"))
			Expect(user).To(HaveKeyWithValue("nom", "Hopper"))
			Expect(user).NotTo(HaveKey("password"))
			Expect(user).NotTo(HaveKey("passwordHash"))
		})

		It("answers 400 for a duplicate email", func() {
			do(http.MethodPost, "/auth/register", `{"email":"dup@example.com","password":"pw"}`, "")
			w := do(http.MethodPost, "/auth/register", `{"email":"dup@example.com","password":"pw"}`, "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))

			var body map[string]map[string]interface{}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body["error"]).To(HaveKeyWithValue("code", "DUPLICATE_EMAIL"))
			Expect(body["error"]).To(HaveKeyWithValue("type", "DUPLICATE"))
		})

		It("answers 400 for malformed JSON and missing fields", func() {
			w := do(http.MethodPost, "/auth/register", `{"email":`, "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))

			w = do(http.MethodPost, "/auth/register", `{"email":"x@example.com"}`, "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(w)).To(Equal("VALIDATION_FAILED"))
		})
	})

	Describe("POST /auth/login", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/auth/register", `{"email":"ok@example.com","password":"pw"}`, "")
		})

		It("returns token, user and expiresAt", func() {
			w := do(http.MethodPost, "/auth/login", `{"email":"ok@example.com","password":"pw"}`, "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]interface{}
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp).To(HaveKey("token"))
			Expect(resp).To(HaveKey("expiresAt"))
			Expect(resp["user"]).To(HaveKeyWithValue("email", "ok@example.com"))

			logs := h.loginLogs()
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].IPAddress).To(Equal("198.51.100.7"))
			Expect(logs[0].UserAgent).To(Equal("handler-test"))
		})

		It("answers 401 with the same body for unknown email and wrong password", func() {
			wrong := do(http.MethodPost, "/auth/login", `{"email":"ok@example.com","password":"nope"}`, "")
			unknown := do(http.MethodPost, "/auth/login", `{"email":"who@example.com","password":"nope"}`, "")

			Expect(wrong.Code).To(Equal(http.StatusUnauthorized))
			Expect(unknown.Code).To(Equal(http.StatusUnauthorized))
			Expect(unknown.Body.String()).To(Equal(wrong.Body.String()))
		})

		It("answers 403 for an inactive user", func() {
			Expect(h.db.Exec("UPDATE users SET is_active = ? WHERE email = ?", false, "ok@example.com").Error).NotTo(HaveOccurred())
			w := do(http.MethodPost, "/auth/login", `{"email":"ok@example.com","password":"pw"}`, "")
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(w)).To(Equal("USER_INACTIVE"))
		})
	})

	Describe("Authenticate", func() {
		var token string

		BeforeEach(func() {
			do(http.MethodPost, "/auth/register", `{"email":"me@example.com","password":"pw","prenom":"Me"}`, "")
			token = login("me@example.com", "pw")
		})

		It("answers 401 MISSING_TOKEN without a header", func() {
			w := do(http.MethodGet, "/whoami", "", "")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorCode(w)).To(Equal("MISSING_TOKEN"))
		})

		It("answers 401 INVALID_TOKEN for garbage", func() {
			w := do(http.MethodGet, "/whoami", "", "Bearer not-a-token")
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorCode(w)).To(Equal("INVALID_TOKEN"))
		})

		It("accepts both the Bearer scheme and a raw token", func() {
			for _, header := range []string{"Bearer " + token, token} {
				w := do(http.MethodGet, "/whoami", "", header)
				Expect(w.Code).To(Equal(http.StatusOK))

				var identity map[string]interface{}
				Expect(json.NewDecoder(w.Body).Decode(&identity)).To(Succeed())
				Expect(identity).To(HaveKeyWithValue("email", "me@example.com"))
				Expect(identity).To(HaveKeyWithValue("prenom", "Me"))
				Expect(identity).NotTo(HaveKey("token"))
			}
		})

		It("logs out once and then rejects the token", func() {
			w := do(http.MethodPost, "/auth/logout", "", "Bearer "+token)
			Expect(w.Code).To(Equal(http.StatusOK))

			w = do(http.MethodPost, "/auth/logout", "", "Bearer "+token)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))

			w = do(http.MethodGet, "/whoami", "", "Bearer "+token)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("RequirePermission", func() {
		It("answers 403 and records the denial for a plain user", func() {
			do(http.MethodPost, "/auth/register", `{"email":"plain@example.com","password":"pw"}`, "")
			token := login("plain@example.com", "pw")

			w := do(http.MethodDelete, "/users/5", "", "Bearer "+token)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(w)).To(Equal("FORBIDDEN"))
			Expect(denials.denied).To(Equal([]string{"users:delete"}))
		})

		It("lets an admin through", func() {
			do(http.MethodPost, "/auth/register", `{"email":"root@example.com","password":"pw"}`, "")
			var id int64
			Expect(h.db.Raw("SELECT id FROM users WHERE email = ?", "root@example.com").Scan(&id).Error).NotTo(HaveOccurred())
			Expect(storetest.AssignRole(context.Background(), h.db, id, "admin")).To(Succeed())

			token := login("root@example.com", "pw")
			w := do(http.MethodDelete, "/users/5", "", "Bearer "+token)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(denials.denied).To(BeEmpty())
		})

		It("answers 500 without leaking the cause when the check fails", func() {
			broken := auth.NewAuthenticator(transport.NewBaseHandler(quietLogger), h.sessions, brokenChecker{}, nil)
			gate := broken.RequirePermission("users", "read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			req = req.WithContext(errs.ContextWithIdentity(req.Context(), &errs.Identity{UserID: 1}))
			w := httptest.NewRecorder()
			gate.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(ContainSubstring("db down"))
		})

		It("reports a missing identity from HasPermission", func() {
			_, err := authenticator.HasPermission(context.Background(), "users", "read")
			Expect(errors.Is(err, errs.ErrMissingToken)).To(BeTrue())
		})
	})
})
