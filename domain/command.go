package domain

// Inbound commands from the transport layer. Struct tags drive
// go-playground/validator checks before any mutation happens.

type SendDirectMessageCommand struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required,nefield=SenderID"`
	Content    string `validate:"required,max=4000"`
}

type SendRoomMessageCommand struct {
	SenderID string `validate:"required"`
	RoomID   RoomID `validate:"required"`
	Content  string `validate:"required,max=4000"`
}

type CreateRoomCommand struct {
	Name           string   `validate:"required,max=128"`
	Description    string   `validate:"max=512"`
	ParticipantIDs []string `validate:"required,min=1,dive,required"`
}
