package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mhpenta/imagestudio"
)

const (
	sessionKey = "session"

	// eventBuffer is how many unsent snapshots an event stream holds.
	eventBuffer = 16
)

var (
	errSessionNotFound = errors.New("session not found")
	errUnknownSlot     = errors.New("image slot must be 1 or 2")
)

// SessionView is the JSON representation of a session.
type SessionView struct {
	ID string `json:"id"`
	imagestudio.Snapshot
	Outcome string `json:"outcome"`
}

// AttachmentRequest is the JSON body of an image upload.
type AttachmentRequest struct {
	Base64   string `json:"base64" binding:"required,base64"`
	MIMEType string `json:"mimeType" binding:"required"`
	Name     string `json:"name"`
}

// UpdateSessionRequest carries the fields a PATCH may change. Absent fields
// are left as they are.
type UpdateSessionRequest struct {
	Prompt         *string                     `json:"prompt"`
	Mode           *imagestudio.Mode           `json:"mode"`
	CreateFunction *imagestudio.CreateFunction `json:"createFunction"`
	EditFunction   *imagestudio.EditFunction   `json:"editFunction"`
}

func newSessionView(id string, snap imagestudio.Snapshot) SessionView {
	return SessionView{
		ID:       id,
		Snapshot: snap,
		Outcome:  snap.Outcome().Kind.String(),
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// loadSession resolves :id and stores the session on the context.
func (s *Server) loadSession(c *gin.Context) {
	session, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		abortWithError(c, http.StatusNotFound, errSessionNotFound)
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

func currentSession(c *gin.Context) *imagestudio.Session {
	return c.MustGet(sessionKey).(*imagestudio.Session)
}

func (s *Server) CreateSessionHandler(c *gin.Context) {
	id, session := s.sessions.Create()
	s.logger.Info("session created", "session_id", id)
	c.JSON(http.StatusCreated, newSessionView(id, session.Snapshot()))
}

func (s *Server) GetSessionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionView(c.Param("id"), currentSession(c).Snapshot()))
}

func (s *Server) DeleteSessionHandler(c *gin.Context) {
	s.sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) UpdateSessionHandler(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, bindingError(err))
		return
	}

	session := currentSession(c)

	// Mode goes first so a PATCH that switches mode and sets a prompt keeps
	// the prompt.
	if req.Mode != nil {
		if err := session.SetMode(*req.Mode); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.CreateFunction != nil {
		if err := session.SetCreateFunction(*req.CreateFunction); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.EditFunction != nil {
		if err := session.SetEditFunction(*req.EditFunction); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.Prompt != nil {
		session.SetPrompt(*req.Prompt)
	}

	c.JSON(http.StatusOK, newSessionView(c.Param("id"), session.Snapshot()))
}

// PutImageHandler fills an image slot from either a multipart "file" field or
// an AttachmentRequest JSON body.
func (s *Server) PutImageHandler(c *gin.Context) {
	set, err := slotSetter(currentSession(c), c.Param("slot"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var attachment *imagestudio.ImageAttachment
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		attachment, err = attachmentFromForm(c)
	} else {
		attachment, err = attachmentFromJSON(c)
	}
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if _, err := attachment.Decode(); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	set(attachment)
	c.JSON(http.StatusOK, newSessionView(c.Param("id"), currentSession(c).Snapshot()))
}

func (s *Server) DeleteImageHandler(c *gin.Context) {
	set, err := slotSetter(currentSession(c), c.Param("slot"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	set(nil)
	c.JSON(http.StatusOK, newSessionView(c.Param("id"), currentSession(c).Snapshot()))
}

// GenerateHandler runs the submission workflow on the session. Validation
// and generation failures are reported in the session's error field with a
// 200; a session that is already generating yields 409.
func (s *Server) GenerateHandler(c *gin.Context) {
	session := currentSession(c)

	outcome := s.submitter.Submit(c.Request.Context(), session)
	view := newSessionView(c.Param("id"), session.Snapshot())

	if outcome.Kind == imagestudio.OutcomePending {
		c.JSON(http.StatusConflict, gin.H{
			"error":   imagestudio.ErrSubmissionInFlight.Error(),
			"session": view,
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// EventsHandler streams a "session" server-sent event with the full view on
// every state change until the client disconnects.
func (s *Server) EventsHandler(c *gin.Context) {
	id := c.Param("id")
	session := currentSession(c)

	updates := make(chan imagestudio.Snapshot, eventBuffer)
	unwatch := session.Watch(func(snap imagestudio.Snapshot) {
		sendLatest(updates, snap)
	})
	defer unwatch()

	c.SSEvent("session", newSessionView(id, session.Snapshot()))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap := <-updates:
			c.SSEvent("session", newSessionView(id, snap))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// sendLatest queues snap, evicting the oldest queued snapshot when ch is
// full so the newest state always reaches the client. Session listeners are
// serialized, so this is the only sender.
func sendLatest(ch chan imagestudio.Snapshot, snap imagestudio.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func slotSetter(session *imagestudio.Session, slot string) (func(*imagestudio.ImageAttachment), error) {
	switch slot {
	case "1":
		return session.SetImage1, nil
	case "2":
		return session.SetImage2, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownSlot, slot)
	}
}

func attachmentFromJSON(c *gin.Context) (*imagestudio.ImageAttachment, error) {
	var req AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, bindingError(err)
	}
	return &imagestudio.ImageAttachment{
		Base64:   req.Base64,
		MIMEType: req.MIMEType,
		Name:     req.Name,
	}, nil
}

func attachmentFromForm(c *gin.Context) (*imagestudio.ImageAttachment, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("reading file field: %w", err)
	}
	if header.Size > imagestudio.MaxImageSize {
		return nil, imagestudio.ErrImageTooLarge
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = imagestudio.GetMIMEType(header.Filename)
	}
	return imagestudio.NewImageAttachment(data, mimeType, header.Filename), nil
}

// bindingError flattens validator failures into one readable message.
func bindingError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q check", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
