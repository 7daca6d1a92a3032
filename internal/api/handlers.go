package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

const (
	defaultHistoryLimit = 50
	maxJSONBody         = 64 << 10
	// headroom for multipart framing on top of the upload itself
	multipartOverhead = 1 << 20
)

type folderRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	Folder string `json:"folder"`
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

type uploadJSONRequest struct {
	Folder      string `json:"folder"`
	DisplayName string `json:"display_name"`
	MimeType    string `json:"mime_type"`
	ContentID   string `json:"content_id"`
}

// fileResponse adds the gateway URL, when the content store has one.
type fileResponse struct {
	*model.FileRecord
	URL string `json:"url,omitempty"`
}

type namespaceResponse struct {
	Account model.Account   `json:"account"`
	Folders []*model.Folder `json:"folders"`
	Files   []fileResponse  `json:"files"`
}

func (s *Server) file(r *model.FileRecord) fileResponse {
	return fileResponse{FileRecord: r, URL: s.svc.ContentURL(r.ContentID)}
}

func (s *Server) files(records []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(records))
	for _, r := range records {
		out = append(out, s.file(r))
	}
	return out
}

// list keeps empty results encoding as [] rather than null.
func list[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, r, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func pathParam(r *http.Request, name string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, name))
}

func tokenParam(w http.ResponseWriter, r *http.Request) (model.TokenID, bool) {
	token, err := model.ParseTokenID(chi.URLParam(r, "token"))
	if err != nil {
		badRequest(w, r, "token must be a decimal number")
		return 0, false
	}
	return token, true
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.svc.GetUserFolders(r.Context(), credentialFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(folders))
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := s.svc.CreateFolder(r.Context(), credentialFrom(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) renameFolder(w http.ResponseWriter, r *http.Request) {
	oldName, err := pathParam(r, "name")
	if err != nil {
		badRequest(w, r, "malformed folder name")
		return
	}
	var req folderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := s.svc.EditFolder(r.Context(), credentialFrom(r), oldName, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		badRequest(w, r, "malformed folder name")
		return
	}
	if err := s.svc.DeleteFolder(r.Context(), credentialFrom(r), name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.GetUserFiles(r.Context(), credentialFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.files(records))
}

// uploadFile accepts either a multipart form carrying the bytes in a "file"
// part, or a JSON body registering an existing content id.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var req registry.UploadRequest
	if mediaType == "multipart/form-data" {
		limit := s.svc.Limits().MaxUploadSize
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				badRequest(w, r, fmt.Sprintf("upload exceeds %d bytes", limit))
				return
			}
			badRequest(w, r, fmt.Sprintf("invalid multipart form: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		f, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, r, "multipart form must contain a file part")
			return
		}
		defer f.Close()

		req = registry.UploadRequest{
			Folder:      r.FormValue("folder"),
			DisplayName: r.FormValue("display_name"),
			MimeType:    r.FormValue("mime_type"),
			Content:     f,
			Size:        header.Size,
		}
		if req.DisplayName == "" {
			req.DisplayName = header.Filename
		}
		if req.MimeType == "" {
			req.MimeType = header.Header.Get("Content-Type")
		}
	} else {
		var body uploadJSONRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		req = registry.UploadRequest{
			Folder:      body.Folder,
			DisplayName: body.DisplayName,
			MimeType:    body.MimeType,
			ContentID:   body.ContentID,
		}
	}

	record, err := s.svc.UploadFile(r.Context(), credentialFrom(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/files/"+record.Token.String())
	writeJSON(w, http.StatusCreated, s.file(record))
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	record, err := s.svc.GetFile(r.Context(), credentialFrom(r), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.file(record))
}

func (s *Server) readContent(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	// buffered so a store failure can still become a problem response
	var buf bytes.Buffer
	record, err := s.svc.ReadContent(r.Context(), credentialFrom(r), token, &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": record.DisplayName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		s.logger.Warn("writing content response", "token", token, "error", err)
	}
}

func (s *Server) moveFile(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	record, err := s.svc.MoveFile(r.Context(), credentialFrom(r), token, req.Folder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.file(record))
}

func (s *Server) transferToken(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	record, err := s.svc.TransferToken(r.Context(), credentialFrom(r), token, model.Account(req.NewOwner))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.file(record))
}

func (s *Server) tokenHistory(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.TokenHistory(r.Context(), credentialFrom(r), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(entries))
}

func (s *Server) getNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := s.svc.GetNamespace(r.Context(), credentialFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, namespaceResponse{
		Account: ns.Account,
		Folders: list(ns.Folders),
		Files:   s.files(ns.Files),
	})
}

func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, r, "limit must be an integer")
			return
		}
		limit = n
	}
	ops, err := s.svc.GetHistory(r.Context(), credentialFrom(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(ops))
}
