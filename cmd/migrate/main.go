// Утилита применения миграций отдельно от сервиса:
// удобно на деплое, где схему накатывают до старта воркеров.
package main

import (
	"database/sql"
	"log"
	"os"

	"tsr_go/migrations"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[MIGRATE] переменная окружения DATABASE_URL обязательна")
	}

	dbConn, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[MIGRATE] подключение к БД: %v", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(); err != nil {
		log.Fatalf("[MIGRATE] БД недоступна: %v", err)
	}

	if err := migrations.Run(dbConn); err != nil {
		log.Fatalf("[MIGRATE] миграции не применились: %v", err)
	}
	log.Printf("[MIGRATE] схема актуальна")
}
