package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/podcastd/internal/avatar"
	"github.com/nadzzz/podcastd/internal/jobs"
	"github.com/nadzzz/podcastd/internal/llm"
	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/tts"
)

const authHeader = "X-Auth-Id"

type messageResponse struct {
	Message string `json:"message" example:"podcastd is running"`
}

type submitResponse struct {
	Message string `json:"message" example:"Podcast generation started."`
	TaskID  string `json:"task_id" example:"7d5f3b9e-3c1a-4d0e-9a55-0f6b1c2d3e4f"`
}

type statusResponse struct {
	Message string             `json:"message"`
	Tasks   []podcast.Snapshot `json:"tasks"`
}

type voicesResponse struct {
	Provider string           `json:"tts_provider" example:"edge-tts"`
	Voices   []map[string]any `json:"voices"`
}

// handleRoot is a liveness probe for API clients.
//
// @Summary  Service liveness
// @Tags     meta
// @Produce  json
// @Success  200  {object}  messageResponse
// @Router   / [get]
func (t *Transport) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "podcastd is running"})
}

// handleGenerate admits a new podcast job.
//
// @Summary     Start a podcast generation job
// @Description Validates the request, registers a pending job for the caller and starts it in the background.
// @Description Poll /podcast-status or subscribe to /ws/podcast-status for progress.
// @Tags        jobs
// @Accept      multipart/form-data
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       X-Auth-Id                     header    string  true   "Client identifier"
// @Param       api_key                       formData  string  false  "LLM API key (defaults to the server key)"
// @Param       base_url                      formData  string  false  "LLM base URL"
// @Param       model                         formData  string  false  "LLM model"
// @Param       input_txt_content             formData  string  true   "Topic text; may contain a ```custom-begin / ```custom-end block"
// @Param       tts_providers_config_content  formData  string  false  "JSON credentials blob keyed by provider prefix"
// @Param       podUsers_json_content         formData  string  true   "JSON speaker roster: [{\"code\":\"...\",\"role\":\"...\"}]"
// @Param       threads                       formData  int     false  "Parallel synthesis workers"
// @Param       tts_provider                  formData  string  false  "TTS provider" default(index-tts)
// @Param       callback_url                  formData  string  false  "URL receiving a PUT with the final snapshot"
// @Param       output_language               formData  string  false  "Output language directive"
// @Param       usetime                       formData  string  false  "Target duration directive, e.g. 5-6 minutes"
// @Success     200  {object}  submitResponse
// @Failure     400  {object}  errorResponse  "Invalid form, roster, provider or credentials"
// @Failure     401  {object}  errorResponse  "Invalid signature"
// @Failure     409  {object}  errorResponse  "A job is already active for this client"
// @Router      /generate-podcast [post]
func (t *Transport) handleGenerate(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(authHeader)
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Auth-Id header.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, t.opts.MaxFormMB<<20)
	if err := r.ParseMultipartForm(t.opts.MaxFormMB << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	p, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := t.jobs.Submit(r.Context(), clientID, p)
	switch {
	case errors.Is(err, jobs.ErrJobConflict):
		writeError(w, http.StatusConflict, "There is already a running task for this auth_id. Please wait for it to complete.")
		return
	case errors.Is(err, tts.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tts_provider: %s.", p.Provider))
		return
	case errors.Is(err, jobs.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("job submission failed", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not start job")
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Message: "Podcast generation started.", TaskID: id})
}

func parseParams(r *http.Request) (jobs.Params, error) {
	input := r.FormValue("input_txt_content")
	if strings.TrimSpace(input) == "" {
		return jobs.Params{}, errors.New("input_txt_content is required")
	}

	rawUsers := r.FormValue("podUsers_json_content")
	if strings.TrimSpace(rawUsers) == "" {
		return jobs.Params{}, errors.New("podUsers_json_content is required")
	}
	var speakers []podcast.Speaker
	if err := json.Unmarshal([]byte(rawUsers), &speakers); err != nil {
		return jobs.Params{}, fmt.Errorf("podUsers_json_content is not a speaker list: %v", err)
	}

	threads := 0
	if v := r.FormValue("threads"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return jobs.Params{}, fmt.Errorf("threads must be an integer: %q", v)
		}
		threads = n
	}

	provider := r.FormValue("tts_provider")
	if provider == "" {
		provider = tts.ProviderIndexTTS
	}

	return jobs.Params{
		LLM: llm.Credentials{
			APIKey:  r.FormValue("api_key"),
			BaseURL: r.FormValue("base_url"),
			Model:   r.FormValue("model"),
		},
		Input:          input,
		Provider:       provider,
		Credentials:    r.FormValue("tts_providers_config_content"),
		Speakers:       speakers,
		Threads:        threads,
		CallbackURL:    r.FormValue("callback_url"),
		OutputLanguage: r.FormValue("output_language"),
		Duration:       r.FormValue("usetime"),
	}, nil
}

// handleStatus lists the caller's jobs.
//
// @Summary  List the caller's jobs
// @Tags     jobs
// @Produce  json
// @Param    X-Auth-Id  header  string  true  "Client identifier"
// @Success  200  {object}  statusResponse
// @Failure  400  {object}  errorResponse
// @Failure  401  {object}  errorResponse
// @Router   /podcast-status [get]
func (t *Transport) handleStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(authHeader)
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Auth-Id header.")
		return
	}
	tasks := t.jobs.Status(clientID)
	if len(tasks) == 0 {
		writeJSON(w, http.StatusOK, statusResponse{Message: "No tasks found for this auth_id.", Tasks: []podcast.Snapshot{}})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Message: "Tasks retrieved successfully.", Tasks: tasks})
}

// handleDownload streams a merged artifact.
//
// @Summary  Download a podcast
// @Tags     artifacts
// @Produce  audio/mpeg
// @Param    file_name  query  string  true  "Artifact file name"
// @Success  200  {file}    binary
// @Failure  400  {object}  errorResponse
// @Failure  404  {object}  errorResponse
// @Router   /download-podcast [get]
func (t *Transport) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file_name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "file_name is required.")
		return
	}

	rc, info, err := t.store.Open(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}
	if err != nil {
		slog.Error("opening artifact failed", "artifact", name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime, rs)
		return
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if !info.ModTime.IsZero() {
		w.Header().Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming artifact interrupted", "artifact", name, "error", err)
	}
}

// handleAudioInfo returns the job that produced an artifact.
//
// @Summary  Look up the job behind an artifact
// @Tags     artifacts
// @Produce  json
// @Param    file_name  query  string  true  "Artifact file name, with or without extension"
// @Success  200  {object}  podcast.Snapshot
// @Failure  400  {object}  errorResponse
// @Failure  404  {object}  errorResponse
// @Router   /get-audio-info [get]
func (t *Transport) handleAudioInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file_name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "file_name is required.")
		return
	}
	snap, err := t.jobs.ByArtifact(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Audio file information not found.")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleVoices lists a provider's voices.
//
// @Summary  List the voices of a TTS provider
// @Tags     voices
// @Produce  json
// @Param    tts_provider  query  string  true  "Provider identifier"
// @Success  200  {object}  voicesResponse
// @Failure  400  {object}  errorResponse  "Unknown provider"
// @Failure  404  {object}  errorResponse  "Config or voices missing"
// @Failure  500  {object}  errorResponse  "Malformed config"
// @Router   /get-voices [get]
func (t *Transport) handleVoices(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("tts_provider")
	if !t.registry.Has(provider) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tts_provider: %s.", provider))
		return
	}

	voices, err := tts.LoadVoices(t.opts.ProviderDir, provider)
	switch {
	case errors.Is(err, tts.ErrConfigNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Config file not found for %s.", provider))
		return
	case errors.Is(err, tts.ErrNoVoices):
		writeError(w, http.StatusNotFound, fmt.Sprintf("No 'voices' key found in config for %s.", provider))
		return
	case err != nil:
		slog.Error("loading voices failed", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error decoding config for %s.", provider))
		return
	}
	if voices == nil {
		voices = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Provider: provider, Voices: voices})
}

// handleAvatar renders a pixel avatar.
//
// @Summary  Pixel avatar for a name
// @Tags     meta
// @Produce  image/png
// @Param    username  path  string  true  "Seed"
// @Success  200  {file}  binary
// @Router   /avatar/{username} [get]
func (t *Transport) handleAvatar(w http.ResponseWriter, r *http.Request) {
	img, err := avatar.PNG(r.PathValue("username"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not render avatar")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int((24*time.Hour).Seconds())))
	_, _ = w.Write(img)
}
