package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
)

// Handler отдаёт служебное API поверх журнала доставки.
type Handler struct {
	journal domain.NotificationLogRepo
	log     zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(journal domain.NotificationLogRepo, log zerolog.Logger) *Handler {
	return &Handler{journal: journal, log: log}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/users/{chatID}/notifications/stats", h.stats)
}

type statRow struct {
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
}

type statsResponse struct {
	ChatID int64     `json:"chatId"`
	Total  int       `json:"total"`
	Stats  []statRow `json:"stats"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "некорректный chat id", http.StatusBadRequest)
		return
	}

	stats, err := h.journal.StatsByRecipient(r.Context(), chatID)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("api: не удалось получить статистику журнала")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{ChatID: chatID, Stats: make([]statRow, 0, len(stats))}
	for _, s := range stats {
		resp.Total += s.Count
		resp.Stats = append(resp.Stats, statRow{
			Type:    string(s.Type),
			SubType: s.SubType,
			Success: s.Success,
			Count:   s.Count,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("api: не удалось записать ответ")
	}
}
