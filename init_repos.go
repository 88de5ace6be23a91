// Package main: Repository katmanı başlatma.
//
// initRepositories, tüm repository implementasyonlarını oluşturur.
// Her repository bir SQL.DB bağlantısı alır ve interface döner.
package main

import (
	"database/sql"

	"github.com/akinalp/nexus/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	User         repository.UserRepository
	Conversation repository.ConversationRepository
	CallLog      repository.CallLogRepository
}

// initRepositories, veritabanı bağlantısından tüm repository'leri oluşturur.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		User:         repository.NewSQLiteUserRepo(conn),
		Conversation: repository.NewSQLiteConversationRepo(conn),
		CallLog:      repository.NewSQLiteCallLogRepo(conn),
	}
}
