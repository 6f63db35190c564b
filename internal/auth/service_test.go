package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/auth"
	authPostgres "github.com/frahmantamala/access-management/internal/auth/postgres"
	loginlogDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/loginlog"
	sessionDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/core/events"
	"github.com/frahmantamala/access-management/internal/core/store"
	"github.com/frahmantamala/access-management/internal/core/store/storetest"
	"github.com/frahmantamala/access-management/internal/loginlog"
	loginlogPostgres "github.com/frahmantamala/access-management/internal/loginlog/postgres"
	"github.com/frahmantamala/access-management/internal/permission"
	permissionPostgres "github.com/frahmantamala/access-management/internal/permission/postgres"
	"github.com/frahmantamala/access-management/internal/session"
	sessionPostgres "github.com/frahmantamala/access-management/internal/session/postgres"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// harness wires the real repositories over a seeded in-memory store.
type harness struct {
	db        *gorm.DB
	store     *store.Store
	sessions  *session.Manager
	evaluator *permission.Evaluator
	audit     *loginlog.Service
	recorder  *recordingPublisher
	service   *auth.Service
}

func newHarness(opts ...auth.Option) *harness {
	db, err := storetest.OpenSeeded()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	h := &harness{
		db:        db,
		store:     store.New(db),
		sessions:  session.NewManager(sessionPostgres.NewSessionRepository(db), time.Hour),
		evaluator: permission.NewEvaluator(permissionPostgres.NewPermissionRepository(db)),
		audit:     loginlog.NewService(loginlogPostgres.NewLoginLogRepository(db)),
		recorder:  &recordingPublisher{},
	}
	h.service = h.build(authPostgres.NewUnitOfWork(h.store), h.audit, opts...)
	return h
}

func (h *harness) build(uow auth.UnitOfWork, audit *loginlog.Service, opts ...auth.Option) *auth.Service {
	opts = append([]auth.Option{auth.WithPublisher(h.recorder)}, opts...)
	return auth.NewService(uow, auth.NewBcryptHasher(bcrypt.MinCost), h.sessions, audit, quietLogger, opts...)
}

func (h *harness) count(model interface{}, query string, args ...interface{}) int64 {
	var n int64
	q := h.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	gomega.Expect(q.Count(&n).Error).NotTo(gomega.HaveOccurred())
	return n
}

func (h *harness) loginLogs() []loginlogDatamodel.Entry {
	var rows []loginlogDatamodel.Entry
	gomega.Expect(h.db.Order("id").Find(&rows).Error).NotTo(gomega.HaveOccurred())
	return rows
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishSync(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// sabotagedUnitOfWork runs the real transaction but lets a test swap repositories inside it.
type sabotagedUnitOfWork struct {
	inner  auth.UnitOfWork
	mutate func(repos *auth.Repositories)
}

func (s sabotagedUnitOfWork) WithinTx(ctx context.Context, fn func(repos auth.Repositories) error) error {
	return s.inner.WithinTx(ctx, func(repos auth.Repositories) error {
		s.mutate(&repos)
		return fn(repos)
	})
}

type failingLogRepository struct {
	loginlog.RepositoryAPI
}

func (failingLogRepository) Append(ctx context.Context, entry *loginlogDatamodel.Entry) error {
	return errors.New("audit table unavailable")
}

func strPtr(s string) *string { return &s }

var _ = ginkgo.Describe("AuthService", func() {
	var (
		h   *harness
		ctx context.Context
	)

	client := auth.ClientInfo{IPAddress: "192.0.2.10", UserAgent: "ginkgo/2"}

	ginkgo.BeforeEach(func() {
		h = newHarness()
		ctx = context.Background()
	})

	register := func(email, password string) *auth.PublicUser {
		u, err := h.service.Register(ctx, auth.RegisterDTO{Email: email, Password: password})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		return u
	}

	ginkgo.Describe("Register", func() {
		ginkgo.It("creates an active user with exactly the user role", func() {
			u, err := h.service.Register(ctx, auth.RegisterDTO{
				Email:     "ada@example.com",
				Password:  "s3cret-pass",
				LastName:  strPtr("Lovelace"),
				FirstName: strPtr("Ada"),
			})

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(u.ID).To(gomega.BeNumerically(">", 0))
			gomega.Expect(u.Email).To(gomega.Equal("ada@example.com"))
			gomega.Expect(u.LastName).To(gomega.HaveValue(gomega.Equal("Lovelace")))
			gomega.Expect(u.CreatedAt).NotTo(gomega.BeZero())

			var stored userDatamodel.User
			gomega.Expect(h.db.Take(&stored, u.ID).Error).NotTo(gomega.HaveOccurred())
			gomega.Expect(stored.IsActive).To(gomega.BeTrue())
			gomega.Expect(stored.PasswordHash).NotTo(gomega.Equal("s3cret-pass"))
			gomega.Expect(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret-pass"))).To(gomega.Succeed())

			var roles []string
			gomega.Expect(h.db.Table("user_roles").
				Joins("JOIN roles ON roles.id = user_roles.role_id").
				Where("user_roles.user_id = ?", u.ID).
				Pluck("roles.name", &roles).Error).NotTo(gomega.HaveOccurred())
			gomega.Expect(roles).To(gomega.Equal([]string{"user"}))

			gomega.Expect(h.recorder.types()).To(gomega.Equal([]string{events.EventTypeUserRegistered}))
		})

		ginkgo.It("stores blank names as null", func() {
			u, err := h.service.Register(ctx, auth.RegisterDTO{Email: "blank@example.com", Password: "pw", LastName: strPtr("  ")})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(u.LastName).To(gomega.BeNil())
			gomega.Expect(u.FirstName).To(gomega.BeNil())
		})

		ginkgo.It("rejects a duplicate email and leaves a single row", func() {
			register("dup@example.com", "first")

			_, err := h.service.Register(ctx, auth.RegisterDTO{Email: "dup@example.com", Password: "second"})
			gomega.Expect(errors.Is(err, errs.ErrDuplicateEmail)).To(gomega.BeTrue())

			gomega.Expect(h.count(&userDatamodel.User{}, "email = ?", "dup@example.com")).To(gomega.Equal(int64(1)))
			gomega.Expect(h.count(&userDatamodel.UserRole{}, "")).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("lets exactly one of several concurrent registrations win", func() {
			const attempts = 6
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				dupes     int
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer ginkgo.GinkgoRecover()
					defer wg.Done()
					_, err := h.service.Register(ctx, auth.RegisterDTO{Email: "race@example.com", Password: "pw"})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						succeeded++
					case errors.Is(err, errs.ErrDuplicateEmail):
						dupes++
					default:
						ginkgo.Fail("unexpected error: " + err.Error())
					}
				}()
			}
			wg.Wait()

			gomega.Expect(succeeded).To(gomega.Equal(1))
			gomega.Expect(dupes).To(gomega.Equal(attempts - 1))
			gomega.Expect(h.count(&userDatamodel.User{}, "email = ?", "race@example.com")).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("validates required fields before touching the store", func() {
			_, err := h.service.Register(ctx, auth.RegisterDTO{Email: "   ", Password: ""})
			appErr, ok := errs.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(errs.ErrorTypeValidation))
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(400))

			details, ok := appErr.Details.(errs.ValidationErrors)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(details.Errors).To(gomega.HaveLen(2))

			gomega.Expect(h.count(&userDatamodel.User{}, "")).To(gomega.BeZero())
		})

		ginkgo.It("rolls the user back when the default role is missing", func() {
			svc := h.build(authPostgres.NewUnitOfWork(h.store), h.audit, auth.WithDefaultRole("ghost"))

			_, err := svc.Register(ctx, auth.RegisterDTO{Email: "orphan@example.com", Password: "pw"})
			appErr, ok := errs.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(errs.ErrorTypeInternal))

			gomega.Expect(h.count(&userDatamodel.User{}, "")).To(gomega.BeZero())
			gomega.Expect(h.count(&userDatamodel.UserRole{}, "")).To(gomega.BeZero())
		})

		ginkgo.It("writes nothing when the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := h.service.Register(cancelled, auth.RegisterDTO{Email: "late@example.com", Password: "pw"})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errors.Is(err, context.Canceled)).To(gomega.BeTrue())
			gomega.Expect(h.count(&userDatamodel.User{}, "")).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("Login", func() {
		var user *auth.PublicUser

		ginkgo.BeforeEach(func() {
			user = register("grace@example.com", "correct-horse")
		})

		ginkgo.It("issues a session usable by the session manager", func() {
			before := time.Now()
			res, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(res.Token).NotTo(gomega.BeEmpty())
			gomega.Expect(res.User.ID).To(gomega.Equal(user.ID))
			gomega.Expect(res.ExpiresAt).To(gomega.BeTemporally("~", before.Add(time.Hour), 5*time.Second))

			identity, err := h.sessions.Validate(ctx, res.Token)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(identity.Email).To(gomega.Equal("grace@example.com"))

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(1))
			gomega.Expect(logs[0].Success).To(gomega.BeTrue())
			gomega.Expect(logs[0].UserID).To(gomega.HaveValue(gomega.Equal(user.ID)))
			gomega.Expect(logs[0].IPAddress).To(gomega.Equal("192.0.2.10"))
			gomega.Expect(logs[0].UserAgent).To(gomega.Equal("ginkgo/2"))
		})

		ginkgo.It("issues a distinct session per login", func() {
			first, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			second, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(first.Token).NotTo(gomega.Equal(second.Token))
			gomega.Expect(h.count(&sessionDatamodel.Session{}, "active = ?", true)).To(gomega.Equal(int64(2)))
		})

		ginkgo.It("rejects a wrong password without creating a session", func() {
			_, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "wrong"}, client)
			gomega.Expect(errors.Is(err, errs.ErrInvalidCredentials)).To(gomega.BeTrue())

			gomega.Expect(h.count(&sessionDatamodel.Session{}, "")).To(gomega.BeZero())

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(1))
			gomega.Expect(logs[0].Success).To(gomega.BeFalse())
			gomega.Expect(logs[0].UserID).To(gomega.HaveValue(gomega.Equal(user.ID)))
			gomega.Expect(logs[0].Message).To(gomega.Equal(loginlog.MessageInvalidPassword))
			gomega.Expect(logs[0].Email).To(gomega.Equal("grace@example.com"))
		})

		ginkgo.It("answers an unknown email exactly like a wrong password", func() {
			_, wrongPassword := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "wrong"}, client)
			_, unknownEmail := h.service.Login(ctx, auth.LoginDTO{Email: "nobody@example.com", Password: "wrong"}, client)

			gomega.Expect(unknownEmail).To(gomega.Equal(wrongPassword))

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(2))
			gomega.Expect(logs[1].UserID).To(gomega.BeNil())
			gomega.Expect(logs[1].Email).To(gomega.Equal("nobody@example.com"))
			gomega.Expect(logs[1].Message).To(gomega.Equal(loginlog.MessageUnknownEmail))
		})

		ginkgo.It("audits a login missing its password as a failed attempt", func() {
			_, err := h.service.Login(ctx, auth.LoginDTO{Email: " grace@example.com ", Password: ""}, client)
			appErr, ok := errs.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(errs.ErrorTypeValidation))

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(1))
			gomega.Expect(logs[0].Success).To(gomega.BeFalse())
			gomega.Expect(logs[0].UserID).To(gomega.BeNil())
			gomega.Expect(logs[0].Email).To(gomega.Equal("grace@example.com"))
			gomega.Expect(logs[0].Message).To(gomega.Equal(loginlog.MessageValidationFailed))
			gomega.Expect(logs[0].IPAddress).To(gomega.Equal("192.0.2.10"))
			gomega.Expect(h.count(&sessionDatamodel.Session{}, "")).To(gomega.BeZero())
		})

		ginkgo.It("refuses inactive users and audits the attempt", func() {
			gomega.Expect(h.db.Model(&userDatamodel.User{}).Where("id = ?", user.ID).Update("is_active", false).Error).NotTo(gomega.HaveOccurred())

			_, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)
			gomega.Expect(errors.Is(err, errs.ErrUserInactive)).To(gomega.BeTrue())

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(1))
			gomega.Expect(logs[0].Message).To(gomega.Equal(loginlog.MessageUserInactive))
			gomega.Expect(h.count(&sessionDatamodel.Session{}, "")).To(gomega.BeZero())
		})

		ginkgo.It("rolls the session back when the success entry cannot be written", func() {
			uow := sabotagedUnitOfWork{
				inner:  authPostgres.NewUnitOfWork(h.store),
				mutate: func(repos *auth.Repositories) { repos.LoginLogs = failingLogRepository{} },
			}
			svc := h.build(uow, h.audit)

			_, err := svc.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)
			appErr, ok := errs.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(500))

			gomega.Expect(h.count(&sessionDatamodel.Session{}, "")).To(gomega.BeZero())
			gomega.Expect(h.loginLogs()).To(gomega.BeEmpty())
		})

		ginkgo.It("reports a store failure when a rejected attempt cannot be audited", func() {
			svc := h.build(authPostgres.NewUnitOfWork(h.store), loginlog.NewService(failingLogRepository{}))

			_, err := svc.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "wrong"}, client)
			appErr, ok := errs.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(errs.ErrorTypeInternal))
		})

		ginkgo.It("publishes success and failure events without credentials", func() {
			_, _ = h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "wrong"}, client)
			_, err := h.service.Login(ctx, auth.LoginDTO{Email: "grace@example.com", Password: "correct-horse"}, client)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(h.recorder.types()).To(gomega.Equal([]string{
				events.EventTypeUserRegistered,
				events.EventTypeLoginFailed,
				events.EventTypeLoginSucceeded,
			}))
			for _, e := range h.recorder.events {
				gomega.Expect(e.Payload()).NotTo(gomega.HaveKey("password"))
				gomega.Expect(e.Payload()).NotTo(gomega.HaveKey("token"))
			}
		})
	})

	ginkgo.Describe("Logout", func() {
		var token string

		ginkgo.BeforeEach(func() {
			register("linus@example.com", "pw")
			res, err := h.service.Login(ctx, auth.LoginDTO{Email: "linus@example.com", Password: "pw"}, client)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			token = res.Token
		})

		ginkgo.It("runs the full register, login, validate, logout cycle", func() {
			_, err := h.sessions.Validate(ctx, token)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(h.service.Logout(ctx, token, client)).To(gomega.Succeed())

			_, err = h.sessions.Validate(ctx, token)
			gomega.Expect(errors.Is(err, errs.ErrInvalidToken)).To(gomega.BeTrue())

			logs := h.loginLogs()
			gomega.Expect(logs).To(gomega.HaveLen(2))
			gomega.Expect(logs[1].Message).To(gomega.Equal(loginlog.MessageLogout))
			gomega.Expect(logs[1].Success).To(gomega.BeTrue())
			gomega.Expect(logs[1].Email).To(gomega.Equal("linus@example.com"))
		})

		ginkgo.It("answers SessionNotFound the second time", func() {
			gomega.Expect(h.service.Logout(ctx, token, client)).To(gomega.Succeed())

			err := h.service.Logout(ctx, token, client)
			gomega.Expect(errors.Is(err, errs.ErrSessionNotFound)).To(gomega.BeTrue())
			gomega.Expect(h.loginLogs()).To(gomega.HaveLen(2))
		})

		ginkgo.It("keeps the session active when the logout entry cannot be written", func() {
			uow := sabotagedUnitOfWork{
				inner:  authPostgres.NewUnitOfWork(h.store),
				mutate: func(repos *auth.Repositories) { repos.LoginLogs = failingLogRepository{} },
			}
			svc := h.build(uow, h.audit)

			gomega.Expect(svc.Logout(ctx, token, client)).NotTo(gomega.Succeed())

			_, err := h.sessions.Validate(ctx, token)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		})
	})
})
