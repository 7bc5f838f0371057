package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"helpdesk-autoreply/internal/model"
)

type sppClient struct {
	ID    int64  `json:"id"`
	NameF string `json:"name_f"`
	NameL string `json:"name_l"`
	Email string `json:"email"`
}

func (c sppClient) fullName() string {
	return strings.TrimSpace(c.NameF + " " + c.NameL)
}

type sppEmployee struct {
	ID int64 `json:"id"`
}

type sppItem struct {
	ID            int64         `json:"id"`
	Status        string        `json:"status"`
	Service       string        `json:"service"`
	Subject       string        `json:"subject"`
	UserID        int64         `json:"user_id"`
	Client        sppClient     `json:"client"`
	Employees     []sppEmployee `json:"employees"`
	LastMessageAt string        `json:"last_message_at"`
	CreatedAt     string        `json:"created_at"`
	Note          string        `json:"note"`
	OrderID       *int64        `json:"order_id"`
}

type sppMessage struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	CreatedAt string `json:"created_at"`
	Message   string `json:"message"`
	StaffOnly bool   `json:"staff_only"`
}

type sppListResponse[T any] struct {
	Data []T `json:"data"`
}

type sppPostRequest struct {
	Message   string `json:"message"`
	StaffOnly bool   `json:"staff_only"`
	UserID    int64  `json:"user_id,omitempty"`
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (i sppItem) toConversation(sourceType model.SourceType) model.Conversation {
	conv := model.Conversation{
		SourceType:    sourceType,
		SourceID:      strconv.FormatInt(i.ID, 10),
		Status:        i.Status,
		Subject:       i.Subject,
		ServiceName:   i.Service,
		ClientName:    i.Client.fullName(),
		ClientEmail:   i.Client.Email,
		ClientUserID:  strconv.FormatInt(i.UserID, 10),
		Note:          i.Note,
		LastMessageAt: parseTime(i.LastMessageAt),
		CreatedAt:     parseTime(i.CreatedAt),
	}
	if len(i.Employees) > 0 && i.Employees[0].ID != 0 {
		conv.ManagerUserID = strconv.FormatInt(i.Employees[0].ID, 10)
	}
	return conv
}

func (m sppMessage) toMessage(clientUserID string) model.Message {
	role := model.SenderStaff
	if strconv.FormatInt(m.UserID, 10) == clientUserID {
		role = model.SenderClient
	}
	return model.Message{
		ID:         strconv.FormatInt(m.ID, 10),
		SenderRole: role,
		Timestamp:  parseTime(m.CreatedAt),
		Body:       m.Message,
		Internal:   m.StaffOnly,
	}
}
