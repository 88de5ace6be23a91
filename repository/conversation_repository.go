package repository

import "context"

// ConversationRepository, presence fan-out kapsamı için konuşma üyeliği.
// Konuşma CRUD'u bu servisin işi değildir; sadece okunur.
type ConversationRepository interface {
	// PeersOf, userID ile en az bir konuşmayı paylaşan kullanıcıları döner.
	// Kullanıcının kendisi sonuçta yer almaz.
	PeersOf(ctx context.Context, userID string) ([]string, error)
}
