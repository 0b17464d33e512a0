package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	services "github.com/avafin/mlm/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Читающий API для операторских инструментов и бота
type Handler struct {
	router  *mux.Router
	db      interf.AccountStorage
	bonuses interf.BonusStorage
	pools   interf.PoolStorage
	plans   interf.PlanStorage
	cache   interf.CacheStorage
	volume  *services.VolumeService
	logger  *zap.Logger
}

func NewHandler(db interf.AccountStorage, bonuses interf.BonusStorage, pools interf.PoolStorage, plans interf.PlanStorage, cache interf.CacheStorage, volume *services.VolumeService, logger *zap.Logger) *Handler {
	router := mux.NewRouter()
	handler := &Handler{router, db, bonuses, pools, plans, cache, volume, logger}
	router.Use(MiddlewareLog())
	router.HandleFunc("/account/{id}/summary", handler.SummaryHandler).Methods(http.MethodGet)
	router.HandleFunc("/account/{id}/bonuses", handler.BonusesHandler).Methods(http.MethodGet)
	router.HandleFunc("/account/{id}/branches", handler.BranchesHandler).Methods(http.MethodGet)
	router.HandleFunc("/pool/{month}", handler.PoolHandler).Methods(http.MethodGet)
	router.HandleFunc("/plan", handler.GetPlanHandler).Methods(http.MethodGet)
	router.HandleFunc("/plan", handler.SavePlanHandler).Methods(http.MethodPost)

	return handler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *Handler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

func (h *Handler) writeJSON(w http.ResponseWriter, service string, payload any) {
	j, err := json.Marshal(payload)
	if err != nil {
		h.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

type accountSummary struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Rank             string  `json:"rank"`
	IsActive         bool    `json:"isActive"`
	MonthlyPV        float64 `json:"monthlyPV"`
	PersonalVolume   float64 `json:"personalVolume"`
	FullVolume       float64 `json:"fullVolume"`
	QualifyingVolume float64 `json:"qualifyingVolume"`
	Gap              float64 `json:"gap"`
	GraceStreak      int     `json:"graceStreak"`
	LoyaltyQualified bool    `json:"loyaltyQualified"`
	IsPioneer        bool    `json:"isPioneer"`
}

// Сводка аккаунта, cache-aside
func (h *Handler) SummaryHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if h.cache != nil {
		cached, err := h.cache.GetSummary(req.Context(), id)
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached))
			return
		}
	}

	account, err := h.db.GetAccount(req.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.Log("DB get", "SummaryHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summary := accountSummary{
		ID:               account.ID.String(),
		Name:             account.Name,
		Rank:             account.Rank.String(),
		IsActive:         account.IsActive,
		MonthlyPV:        account.Volumes.MonthlyPV,
		PersonalVolume:   account.PersonalVolume,
		FullVolume:       account.FullVolume,
		QualifyingVolume: account.TotalVolume.QualifyingVolume,
		Gap:              account.TotalVolume.Gap,
		GraceStreak:      account.Volumes.GraceStreak,
		LoyaltyQualified: account.Volumes.LoyaltyQualified,
		IsPioneer:        account.Status.IsPioneer,
	}
	j, err := json.Marshal(summary)
	if err != nil {
		h.Log("Marshal", "SummaryHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		_ = h.cache.SetSummary(req.Context(), id, string(j))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

// Начисления аккаунта за период
func (h *Handler) BonusesHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	from, err := time.Parse("2006-01-02", req.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "Invalid from date", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", req.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Invalid to date", http.StatusBadRequest)
		return
	}

	bonuses, err := h.bonuses.GetBonuses(req.Context(), id, from, to.Add(24*time.Hour-time.Second))
	if err != nil {
		h.Log("DB get", "BonusesHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, "BonusesHandler", bonuses)
}

// Лучшие ветки аккаунта
func (h *Handler) BranchesHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	branches, err := h.volume.GetBestBranches(req.Context(), id, 2)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.Log("Best branches", "BranchesHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, "BranchesHandler", branches)
}

// Пул за месяц
func (h *Handler) PoolHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	pool, err := h.pools.GetPoolByMonth(req.Context(), vars["month"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Pool not found", http.StatusNotFound)
			return
		}
		h.Log("DB get", "PoolHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, "PoolHandler", pool)
}

// Текущий маркетинговый план
func (h *Handler) GetPlanHandler(w http.ResponseWriter, req *http.Request) {
	plan, err := h.plans.GetPlan(req.Context())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Plan not found", http.StatusNotFound)
			return
		}
		h.Log("DB get", "GetPlanHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, "GetPlanHandler", plan)
}

// Создать/обновить маркетинговый план
func (h *Handler) SavePlanHandler(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "SavePlanHandler", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer req.Body.Close()
	plan := &model.Plan{}
	err = json.Unmarshal(body, plan)
	if err != nil {
		h.Log("Unmarshal", "SavePlanHandler", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.plans.SavePlan(req.Context(), *plan)
	if err != nil {
		h.Log("SavePlan", "SavePlanHandler", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
