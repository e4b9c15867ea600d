package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/subkit/internal/caption"
	"github.com/gonkalabs/subkit/internal/profanity"
	"github.com/gonkalabs/subkit/internal/review"
	"github.com/gonkalabs/subkit/internal/session"
	"github.com/gonkalabs/subkit/internal/sheet"
	"github.com/gonkalabs/subkit/internal/storage"
	"github.com/gonkalabs/subkit/internal/textenc"
)

func newTestMux(t *testing.T, maxUpload int64) *http.ServeMux {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)
	dec, err := textenc.NewDecoder(nil)
	require.NoError(t, err)
	sc, err := profanity.NewScanner(profanity.DefaultLexicon())
	require.NoError(t, err)
	signer, err := session.Generate(time.Minute)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(store, dec, caption.New(nil), sc, signer, maxUpload).Register(mux)
	return mux
}

func uploadReq(t *testing.T, path, field, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func jsonReq(t *testing.T, path string, v any) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func workbook(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, sheet.Write(&buf, sheet.Table{
		Columns: []string{"OV DIALOGUES", "SPANISH SUBTITLES"},
		Rows:    [][]string{{"Hi", "Hola"}, {"Bye", "Adiós"}},
	}))
	return buf.Bytes()
}

func TestConvert(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	rec := serve(mux, uploadReq(t, "/convert", "excel", "guion.xlsx", workbook(t), map[string]string{"language": "spanish"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "guion_spanish.srt")
	require.Equal(t,
		"1\n00:00:03,000 --> 00:00:05,000\nHola\n\n2\n00:00:06,000 --> 00:00:08,000\nAdiós\n\n",
		rec.Body.String())
}

func TestConvertErrors(t *testing.T) {
	mux := newTestMux(t, 1<<20)

	rec := serve(mux, uploadReq(t, "/convert", "excel", "guion.xlsx", workbook(t), map[string]string{"language": "english"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, errorOf(t, rec), "ENGLISH SUBTITLES")

	rec = serve(mux, uploadReq(t, "/convert", "excel", "guion.csv", []byte("a,b"), map[string]string{"language": "ov"}))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = serve(mux, uploadReq(t, "/convert", "excel", "broken.xlsx", []byte("nope"), map[string]string{"language": "ov"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, uploadReq(t, "/convert", "other", "guion.xlsx", workbook(t), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanCaptions(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	in := "1\r\n00:00:01,000 --> 00:00:02,000\r\n[MUSIC] Hello there\r\n\r\n7\r\n00:00:03,000 --> 00:00:04,000\r\n(sighs) Bye\r\n"
	rec := serve(mux, uploadReq(t, "/captions/clean", "srtfile", "ep1.srt", []byte(in), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "ep1_clean.srt")
	require.Equal(t, "2", rec.Header().Get("X-Caption-Blocks"))
	require.Equal(t,
		"1\n00:00:01,000 --> 00:00:02,000\nHello there\n\n2\n00:00:03,000 --> 00:00:04,000\nBye\n\n",
		rec.Body.String())
}

func TestCleanCaptionsRejectsBinary(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	rec := serve(mux, uploadReq(t, "/captions/clean", "srtfile", "ep1.srt", []byte{0x00, 0xff, 0x00}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	mux := newTestMux(t, 1024)
	rec := serve(mux, uploadReq(t, "/captions/clean", "srtfile", "big.srt", bytes.Repeat([]byte("a"), 4096), nil))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func scan(t *testing.T, mux http.Handler, name, body string) scanResponse {
	t.Helper()
	rec := serve(mux, uploadReq(t, "/profanity/scan", "file", name, []byte(body), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestProfanityScanCleanDownload(t *testing.T) {
	mux := newTestMux(t, 1<<20)

	sr := scan(t, mux, "notes.txt", "Well damn it\nfine\n")
	require.Equal(t, review.StateAwaitingReplacements, sr.State)
	require.Equal(t, profanity.KindText, sr.Kind)
	require.Len(t, sr.Findings, 1)
	require.Equal(t, "damn", sr.Findings[0].Term)
	require.Equal(t, 1, sr.Findings[0].Line)

	rec := serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token:        sr.Token,
		Filename:     sr.Filename,
		Kind:         sr.Kind,
		Content:      sr.Content,
		Findings:     sr.Findings,
		Replacements: map[string]string{"Damn": "darn"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cr cleanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Equal(t, review.StateVerified, cr.State)
	require.Empty(t, cr.Remaining)
	require.NotEmpty(t, cr.Download)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, cr.Download, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "notes_clean.txt")
	require.Equal(t, "Well darn it\nfine\n", rec.Body.String())
}

func TestProfanityScanCleanFile(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	sr := scan(t, mux, "ok.srt", "1\n00:00:01,000 --> 00:00:02,000\nHello\n")
	require.Equal(t, review.StateVerified, sr.State)
	require.Empty(t, sr.Findings)

	rec := serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: sr.Token, Filename: sr.Filename, Content: sr.Content, Findings: sr.Findings,
	}))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestProfanityCleanRejectsTamperedContent(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	sr := scan(t, mux, "notes.txt", "Well damn it")

	tampered := sr.Content.Clone()
	tampered.Lines[0] = "Well hell it"
	rec := serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: sr.Token, Filename: sr.Filename, Content: tampered, Findings: sr.Findings,
		Replacements: map[string]string{"damn": "darn"},
	}))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: "forged", Filename: sr.Filename, Content: sr.Content, Findings: sr.Findings,
	}))
	require.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/profanity/clean", bytes.NewReader([]byte("{")))
	rec = serve(mux, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfanityRetryAfterQCFailure(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	sr := scan(t, mux, "notes.txt", "damn this shit")
	require.Len(t, sr.Findings, 1)

	rec := serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: sr.Token, Filename: sr.Filename, Content: sr.Content, Findings: sr.Findings,
		Replacements: map[string]string{"damn": "darn"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first cleanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, review.StateQCFailed, first.State)
	require.Len(t, first.Remaining, 1)
	require.Equal(t, "shit", first.Remaining[0].Term)
	require.NotEmpty(t, first.Token)
	require.NotNil(t, first.Content)
	require.Empty(t, first.Download)

	rec = serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: first.Token, Filename: sr.Filename, State: first.State,
		Content: *first.Content, Findings: first.Remaining,
		Replacements: map[string]string{"shit": "stuff"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second cleanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, review.StateVerified, second.State)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, second.Download, nil))
	require.Equal(t, "darn this stuff", rec.Body.String())
}

func TestProfanityTable(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	var buf bytes.Buffer
	require.NoError(t, sheet.Write(&buf, sheet.Table{
		Columns: []string{"OV DIALOGUES"},
		Rows:    [][]string{{"bloody hell"}, {"fine"}},
	}))

	rec := serve(mux, uploadReq(t, "/profanity/scan", "file", "guion.xlsx", buf.Bytes(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sr scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	require.Equal(t, profanity.KindTable, sr.Kind)
	require.Len(t, sr.Findings, 1)
	require.Equal(t, 2, sr.Findings[0].Row)
	require.Equal(t, "OV DIALOGUES", sr.Findings[0].Column)

	rec = serve(mux, jsonReq(t, "/profanity/clean", cleanRequest{
		Token: sr.Token, Filename: sr.Filename, Content: sr.Content, Findings: sr.Findings,
		Replacements: map[string]string{"hell": "heck"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cr cleanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Equal(t, review.StateQCFailed, cr.State)
	require.Equal(t, "bloody", cr.Remaining[0].Term)
}

func TestProfanityUnsupportedExtension(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	rec := serve(mux, uploadReq(t, "/profanity/scan", "file", "notes.pdf", []byte("x"), nil))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDownloadNotFound(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/download/missing.srt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/download/.hidden", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func docx(t *testing.T, heading string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>` + heading + `</w:t></w:r></w:p></w:body></w:document>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRename(t *testing.T) {
	mux := newTestMux(t, 1<<20)
	data := docx(t, "Episode 1")
	rec := serve(mux, uploadReq(t, "/rename", "wordfile", "draft.docx", data, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "Episode 1.docx")
	require.Equal(t, data, rec.Body.Bytes())

	rec = serve(mux, uploadReq(t, "/rename", "wordfile", "draft.doc", data, nil))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestLogRequestsRecordsStatus(t *testing.T) {
	h := LogRequests(newTestMux(t, 1<<20))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/download/none", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
