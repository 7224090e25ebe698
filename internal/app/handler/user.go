package handler

import (
	"errors"
	"net/http"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/session"
	"backoffice/internal/app/storage"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
)

type UserHandler struct {
	session session.Creator
	users   storage.UserRepository
}

func NewUserHandler(users storage.UserRepository, sm session.Creator) *UserHandler {
	return &UserHandler{
		session: sm,
		users:   users,
	}
}

type credentials struct {
	Username string `json:"login" validate:"required,min=1,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.Get(r.Context(), "Handler.User.Register")

	in := credentials{}
	if err := readBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	if !validateData(w, in) {
		return
	}

	u, err := h.users.Create(r.Context(), &model.User{
		Name:     in.Username,
		Password: in.Password,
		Role:     model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			log.Debug().Err(err).Send()
		} else {
			log.Error().Err(err).Send()
		}
		WriteError(w, err)
		return
	}

	h.issue(w, r, u, http.StatusCreated)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	hlog.FromRequest(r).Debug().Msg("Handler.User.Login")

	in := credentials{}
	if err := readBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	if !validateData(w, in) {
		return
	}

	u, err := h.users.ReadByNameAndPassword(r.Context(), in.Username, in.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			WriteError(w, apperr.ErrUnauthorized)
			return
		}
		WriteError(w, err)
		return
	}

	h.issue(w, r, u, http.StatusOK)
}

func (h *UserHandler) issue(w http.ResponseWriter, r *http.Request, u *model.User, status int) {
	token, err := h.session.Create(r.Context(), u)
	if err != nil {
		WriteError(w, err)
		return
	}

	out := struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}{token, u.Role}

	w.Header().Add("Authorization", "Bearer "+token)

	WriteResponse(w, out, status)
}

// Balance of the session user, read fresh from the store
func (h *UserHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.User.Balance")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	fresh, err := h.users.Read(ctx, u.ID)
	if err != nil {
		l.Debug().Err(err).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, struct {
		Balance decimal.Decimal `json:"balance"`
	}{fresh.Balance}, http.StatusOK)
}
