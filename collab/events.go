package collab

import "errors"

// Wire event names shared by every transport.
const (
	EventJoinDocument    = "join-document"
	EventEditDocument    = "edit-document"
	EventDocumentUpdated = "document-updated"
	EventFileCreated     = "file-created"
	EventFileDeleted     = "file-deleted"
)

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrOutboxFull        = errors.New("outbox full")
	ErrMissingDocumentID = errors.New("document id is required")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrDocumentMismatch  = errors.New("edit targets a document the connection has not joined")
)

// EditRequest is the payload of an edit-document event.
type EditRequest struct {
	DocumentID string `json:"docId"`
	Content    string `json:"content"`
}

// parseDocumentID accepts a bare string or an object carrying docId or
// documentId.
func parseDocumentID(arg any) (string, error) {
	switch v := arg.(type) {
	case string:
		if v == "" {
			return "", ErrMissingDocumentID
		}
		return v, nil
	case map[string]any:
		for _, key := range []string{"docId", "documentId"} {
			if id, ok := v[key].(string); ok && id != "" {
				return id, nil
			}
		}
		return "", ErrMissingDocumentID
	case nil:
		return "", ErrMissingDocumentID
	default:
		return "", ErrMalformedPayload
	}
}

func parseEditRequest(arg any) (EditRequest, error) {
	switch v := arg.(type) {
	case EditRequest:
		if v.DocumentID == "" {
			return EditRequest{}, ErrMissingDocumentID
		}
		return v, nil
	case map[string]any:
		id, err := parseDocumentID(v)
		if err != nil {
			return EditRequest{}, err
		}
		req := EditRequest{DocumentID: id}
		switch content := v["content"].(type) {
		case string:
			req.Content = content
		case nil:
		default:
			return EditRequest{}, ErrMalformedPayload
		}
		return req, nil
	case nil:
		return EditRequest{}, ErrMissingDocumentID
	default:
		return EditRequest{}, ErrMalformedPayload
	}
}
