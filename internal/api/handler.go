package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gonkalabs/subkit/internal/caption"
	"github.com/gonkalabs/subkit/internal/export"
	"github.com/gonkalabs/subkit/internal/profanity"
	"github.com/gonkalabs/subkit/internal/rename"
	"github.com/gonkalabs/subkit/internal/review"
	"github.com/gonkalabs/subkit/internal/session"
	"github.com/gonkalabs/subkit/internal/sheet"
	"github.com/gonkalabs/subkit/internal/storage"
	"github.com/gonkalabs/subkit/internal/textenc"
)

// multipart parts above this size spill to temporary files
const maxFormMemory = 8 << 20

var contentTypes = map[string]string{
	".srt":  "application/x-subrip; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Handler implements all HTTP endpoints.
type Handler struct {
	store      *storage.Store
	decoder    *textenc.Decoder
	normalizer *caption.Normalizer
	scanner    *profanity.Scanner
	signer     *session.Signer
	maxUpload  int64
}

// New creates a Handler. maxUpload bounds every request body in bytes.
func New(store *storage.Store, dec *textenc.Decoder, norm *caption.Normalizer, sc *profanity.Scanner, signer *session.Signer, maxUpload int64) *Handler {
	return &Handler{
		store:      store,
		decoder:    dec,
		normalizer: norm,
		scanner:    sc,
		signer:     signer,
		maxUpload:  maxUpload,
	}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /convert", h.convert)
	mux.HandleFunc("POST /captions/clean", h.cleanCaptions)
	mux.HandleFunc("POST /profanity/scan", h.scanProfanity)
	mux.HandleFunc("POST /profanity/clean", h.cleanProfanity)
	mux.HandleFunc("GET /download/{name}", h.download)
	mux.HandleFunc("POST /rename", h.rename)
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	up, err := h.receive(w, r, "excel", ".xlsx")
	if err != nil {
		fail(w, err)
		return
	}
	language := strings.ToLower(strings.TrimSpace(r.FormValue("language")))

	t, err := sheet.ReadFile(up.path)
	if err != nil {
		fail(w, err)
		return
	}
	out, err := export.SRT(t, language)
	if err != nil {
		fail(w, err)
		return
	}
	name := export.OutputName(up.name, language)
	if _, err := h.save(name, out); err != nil {
		fail(w, err)
		return
	}
	slog.Info("converted spreadsheet", "file", up.name, "language", language, "cues", len(t.Rows))
	writeAttachment(w, name, out)
}

func (h *Handler) cleanCaptions(w http.ResponseWriter, r *http.Request) {
	up, err := h.receive(w, r, "srtfile", ".srt", ".txt")
	if err != nil {
		fail(w, err)
		return
	}
	data, err := os.ReadFile(up.path)
	if err != nil {
		fail(w, err)
		return
	}
	out, res, err := h.normalizer.NormalizeBytes(h.decoder, data)
	if err != nil {
		fail(w, err)
		return
	}
	for _, warn := range res.Warnings {
		slog.Warn("malformed caption line", "file", up.name, "line", warn.Line, "reason", warn.Reason)
	}
	name := stem(up.name) + "_clean.srt"
	if _, err := h.save(name, out); err != nil {
		fail(w, err)
		return
	}
	slog.Info("normalized captions", "file", up.name, "blocks", res.Blocks, "warnings", len(res.Warnings))
	w.Header().Set("X-Caption-Blocks", fmt.Sprint(res.Blocks))
	w.Header().Set("X-Caption-Warnings", fmt.Sprint(len(res.Warnings)))
	writeAttachment(w, name, out)
}

type scanResponse struct {
	Token    string              `json:"token"`
	Filename string              `json:"filename"`
	Kind     profanity.Kind      `json:"kind"`
	State    review.State        `json:"state"`
	Findings []profanity.Finding `json:"findings"`
	Content  profanity.Content   `json:"content"`
}

func (h *Handler) scanProfanity(w http.ResponseWriter, r *http.Request) {
	up, err := h.receive(w, r, "file", ".srt", ".txt", ".xlsx")
	if err != nil {
		fail(w, err)
		return
	}
	data, err := os.ReadFile(up.path)
	if err != nil {
		fail(w, err)
		return
	}
	content, err := profanity.LoadContent(up.name, data, h.decoder)
	if err != nil {
		fail(w, err)
		return
	}
	res, err := h.scanner.Scan(content)
	if err != nil {
		fail(w, err)
		return
	}
	sess, err := review.Begin(res)
	if err != nil {
		fail(w, err)
		return
	}
	token, err := h.issue(res.Content, res.Findings)
	if err != nil {
		fail(w, err)
		return
	}
	slog.Info("profanity scan", "file", up.name, "kind", res.Kind, "findings", len(res.Findings))
	writeJSON(w, http.StatusOK, scanResponse{
		Token:    token,
		Filename: up.name,
		Kind:     res.Kind,
		State:    sess.State,
		Findings: res.Findings,
		Content:  res.Content,
	})
}

type cleanRequest struct {
	Token        string              `json:"token"`
	Filename     string              `json:"filename"`
	Kind         profanity.Kind      `json:"kind"`
	State        review.State        `json:"state"`
	Content      profanity.Content   `json:"content"`
	Findings     []profanity.Finding `json:"findings"`
	Replacements map[string]string   `json:"replacements"`
}

type cleanResponse struct {
	State     review.State        `json:"state"`
	Remaining []profanity.Finding `json:"remaining"`
	Download  string              `json:"download,omitempty"`

	// Set after a failed QC so the client can resubmit.
	Token   string             `json:"token,omitempty"`
	Content *profanity.Content `json:"content,omitempty"`
}

func (h *Handler) cleanProfanity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	var req cleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, badRequest("invalid JSON body: %v", err))
		return
	}
	if req.Kind != "" && req.Kind != req.Content.Kind {
		fail(w, badRequest("kind %q does not match content kind %q", req.Kind, req.Content.Kind))
		return
	}
	fp, err := session.Fingerprint(req.Content, req.Findings)
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.signer.Verify(req.Token, fp); err != nil {
		fail(w, err)
		return
	}

	sess, err := review.Resume(req.State, req.Content, req.Findings)
	if err != nil {
		fail(w, err)
		return
	}
	if err := sess.Apply(h.scanner, req.Replacements); err != nil {
		fail(w, err)
		return
	}

	cleaned := sess.Content()
	resp := cleanResponse{State: sess.State, Remaining: sess.Remaining}
	if resp.Remaining == nil {
		resp.Remaining = []profanity.Finding{}
	}

	if sess.State == review.StateQCFailed {
		token, err := h.issue(cleaned, sess.Remaining)
		if err != nil {
			fail(w, err)
			return
		}
		resp.Token = token
		resp.Content = &cleaned
		slog.Info("profanity QC failed", "file", req.Filename, "remaining", len(sess.Remaining))
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var buf bytes.Buffer
	if err := profanity.Encode(&buf, cleaned); err != nil {
		fail(w, err)
		return
	}
	path, err := h.save(cleanedName(req.Filename, cleaned.Kind), buf.Bytes())
	if err != nil {
		fail(w, err)
		return
	}
	resp.Download = "/download/" + filepath.Base(path)
	slog.Info("profanity cleaned", "file", req.Filename, "findings", len(req.Findings))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Resolve(r.PathValue("name"))
	if err != nil {
		fail(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fail(w, storage.ErrNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fail(w, err)
		return
	}
	name := storage.DisplayName(path)
	setAttachmentHeaders(w, name)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	up, err := h.receive(w, r, "wordfile", ".docx")
	if err != nil {
		fail(w, err)
		return
	}
	renamed, err := rename.File(up.path)
	if err != nil {
		fail(w, err)
		return
	}
	name := filepath.Base(renamed)
	if renamed == up.path {
		name = up.name
	}
	out := h.store.OutputPath(name)
	if err := os.Rename(renamed, out); err != nil {
		fail(w, err)
		return
	}
	data, err := os.ReadFile(out)
	if err != nil {
		fail(w, err)
		return
	}
	slog.Info("renamed document", "file", up.name, "to", name)
	writeAttachment(w, name, data)
}

// ---------- helpers ----------

type upload struct {
	name string // client file name, sanitized
	path string // stored copy
}

// receive stores the multipart file in field after checking its extension.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request, field string, exts ...string) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return upload{}, err
		}
		return upload{}, badRequest("invalid multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile(field)
	if err != nil {
		return upload{}, badRequest("missing file field %q", field)
	}
	defer file.Close()

	name := storage.SanitizeName(hdr.Filename)
	if !hasExt(name, exts) {
		return upload{}, &httpError{
			status: http.StatusUnsupportedMediaType,
			msg:    fmt.Sprintf("invalid file type %q, expected %s", filepath.Ext(name), strings.Join(exts, ", ")),
		}
	}
	path, err := h.store.SaveUpload(name, file)
	if err != nil {
		return upload{}, err
	}
	return upload{name: name, path: path}, nil
}

func (h *Handler) save(name string, data []byte) (string, error) {
	path := h.store.OutputPath(name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("api: write %s: %w", name, err)
	}
	return path, nil
}

func (h *Handler) issue(c profanity.Content, findings []profanity.Finding) (string, error) {
	fp, err := session.Fingerprint(c, findings)
	if err != nil {
		return "", err
	}
	return h.signer.Issue(fp)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func cleanedName(filename string, kind profanity.Kind) string {
	base := stem(storage.SanitizeName(filename))
	if kind == profanity.KindTable {
		return base + "_clean.xlsx"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".srt" && ext != ".txt" {
		ext = ".txt"
	}
	return base + "_clean" + ext
}

func setAttachmentHeaders(w http.ResponseWriter, name string) {
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

func writeAttachment(w http.ResponseWriter, name string, data []byte) {
	setAttachmentHeaders(w, name)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewReader(data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
