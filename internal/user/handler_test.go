package user_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/transport"
	"github.com/frahmantamala/access-management/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("User HTTP surface", func() {
	var (
		h      *harness
		router *chi.Mux
		actor  int64
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req = req.WithContext(errs.ContextWithIdentity(req.Context(), &errs.Identity{UserID: actor, Email: "admin@example.com"}))
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

	BeforeEach(func() {
		h = newHarness()
		actor = h.createUser("admin@example.com", "admin")

		handler := user.NewHandler(transport.NewBaseHandler(quietLogger), h.service)
		router = chi.NewRouter()
		router.Get("/users", handler.ListUsers)
		router.Get("/users/me", handler.GetCurrentUser)
		router.Put("/users/{id}", handler.UpdateUser)
		router.Delete("/users/{id}", handler.DeleteUser)
		router.Get("/users/{id}/permissions", handler.GetUserPermissions)
	})

	It("returns the current user with permissions", func() {
		w := do(http.MethodGet, "/users/me", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var body map[string]interface{}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("email", "admin@example.com"))
		Expect(body["permissions"]).To(ContainElement("users:delete"))
		Expect(body).NotTo(HaveKey("passwordHash"))
	})

	It("lists users with pagination metadata", func() {
		h.createUser("b@example.com", "user")

		w := do(http.MethodGet, "/users?page=1&limit=1", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var body struct {
			Users      []map[string]interface{} `json:"users"`
			Pagination map[string]interface{}   `json:"pagination"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Users).To(HaveLen(1))
		Expect(body.Pagination).To(HaveKeyWithValue("total", BeNumerically("==", 2)))
		Expect(body.Pagination).To(HaveKeyWithValue("totalPages", BeNumerically("==", 2)))
	})

	It("updates a user", func() {
		id := h.createUser("b@example.com")
		w := do(http.MethodPut, "/users/"+strconv.FormatInt(id, 10), `{"prenom":"Bea","actif":false}`)
		Expect(w.Code).To(Equal(http.StatusOK))

		var body struct {
			Message string                 `json:"message"`
			User    map[string]interface{} `json:"user"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Message).To(Equal("user updated"))
		Expect(body.User).To(HaveKeyWithValue("prenom", "Bea"))
		Expect(body.User).To(HaveKeyWithValue("actif", false))
	})

	It("answers 400 INVALID_ID for a malformed id", func() {
		w := do(http.MethodPut, "/users/abc", `{"prenom":"x"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(errorCode(w)).To(Equal("INVALID_ID"))
	})

	It("answers 400 when deleting yourself", func() {
		w := do(http.MethodDelete, "/users/"+strconv.FormatInt(actor, 10), "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(errorCode(w)).To(Equal("CANNOT_DELETE_SELF"))
	})

	It("deletes another user and then answers 404", func() {
		id := h.createUser("b@example.com")
		path := "/users/" + strconv.FormatInt(id, 10)

		w := do(http.MethodDelete, path, "")
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodDelete, path, "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(errorCode(w)).To(Equal("USER_NOT_FOUND"))
	})

	It("lists permissions under userId", func() {
		id := h.createUser("b@example.com", "user")
		w := do(http.MethodGet, "/users/"+strconv.FormatInt(id, 10)+"/permissions", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var body map[string]interface{}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("userId", BeNumerically("==", id)))
		Expect(body["permissions"]).To(HaveLen(1))
	})
})
