package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sjawhar/interview-room/internal/interview"
	"github.com/sjawhar/interview-room/internal/storage"
	"github.com/sjawhar/interview-room/internal/transcript"
)

const maxRequestBody = 64 << 10

func registerAPIRoutes(mux *http.ServeMux, s *Server) {
	m := s.metrics

	mux.HandleFunc("POST /api/interviews", m.Instrument("create", func(w http.ResponseWriter, r *http.Request) {
		var req interview.CreateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		iv, err := s.store.CreateInterview(req.UserID, req.Role, req.Experience, req.Difficulty)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("create interview: %v", err))
			return
		}
		s.logger.Info("interview created", "interview_id", iv.ID, "user_id", iv.UserID, "role", iv.Role)
		writeJSON(w, http.StatusCreated, iv)
	}))

	mux.HandleFunc("GET /api/interviews/user/{userId}", m.Instrument("list", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "userId")
		if !ok {
			return
		}

		interviews, err := s.store.ListInterviews(userID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list interviews: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, interviews)
	}))

	mux.HandleFunc("POST /api/interviews/{id}/start", m.Instrument("start", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := s.store.MarkStarted(id); err != nil {
			writeStoreError(w, "start interview", err)
			return
		}
		s.publish(EventSessionStarted, id)
		s.respondInterview(w, id)
	}))

	mux.HandleFunc("POST /api/interviews/{id}/end", m.Instrument("end", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		before, err := s.store.GetInterview(id)
		if err != nil {
			writeStoreError(w, "end interview", err)
			return
		}
		if err := s.store.MarkEnded(id); err != nil {
			writeStoreError(w, "end interview", err)
			return
		}

		if before.Status != storage.StatusEnded {
			s.logger.Info("interview ended", "interview_id", id)
			s.publish(EventSessionEnded, id)
			s.wg.Add(1)
			go s.finish(before)
		}
		s.respondInterview(w, id)
	}))

	mux.HandleFunc("GET /api/interviews/{id}/result", m.Instrument("result", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		iv, err := s.store.GetInterview(id)
		if err != nil {
			writeStoreError(w, "get result", err)
			return
		}
		turns, err := s.store.Turns(id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get turns: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, interview.Result{
			ID:             iv.ID,
			Role:           iv.Role,
			Experience:     iv.Experience,
			Difficulty:     iv.Difficulty,
			Status:         iv.Status,
			ChatTranscript: transcript.Format(turns),
			Feedback:       iv.Feedback,
			FeedbackStatus: iv.FeedbackStatus,
		})
	}))
}

func (s *Server) respondInterview(w http.ResponseWriter, id int64) {
	iv, err := s.store.GetInterview(id)
	if err != nil {
		writeStoreError(w, "get interview", err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	status := http.StatusConflict
	if errors.Is(err, storage.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSONError(w, status, fmt.Sprintf("%s: %v", op, err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
