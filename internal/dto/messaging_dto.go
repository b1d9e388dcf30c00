package dto

import "github.com/google/uuid"

type SendMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
}

type AcceptChatRequest struct {
	FromUserID uuid.UUID `json:"from_user_id"`
}

type BlockUserRequest struct {
	TargetUserID uuid.UUID `json:"target_user_id"`
}

type AddContactRequest struct {
	ContactID uuid.UUID `json:"contact_id"`
}

type ContactResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

type ContactListResponse struct {
	Contacts []ContactResponse `json:"contacts"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}
