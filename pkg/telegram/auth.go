package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tsr_go/models"
	"tsr_go/pkg/storage"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// RequestCode отправляет код подтверждения на телефон сессии
// и сохраняет phone_code_hash для второй фазы авторизации.
func RequestCode(db *storage.DB, s *models.Session) (string, error) {
	client, err := newClient(db.Conn, s)
	if err != nil {
		return "", err
	}
	var phoneCodeHash string
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		sentCode, err := client.Auth().SendCode(ctx, s.Phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		sent, ok := sentCode.(*tg.AuthSentCode)
		if !ok {
			log.Printf("[ERROR] Неожиданный тип ответа SendCode: %T", sentCode)
			return fmt.Errorf("unexpected sent code type: %T", sentCode)
		}
		phoneCodeHash = sent.PhoneCodeHash
		// Сохраняем полученный хеш в БД для дальнейшей авторизации
		return db.UpdatePhoneCodeHash(s.ID, phoneCodeHash)
	})
	return phoneCodeHash, err
}

// CompleteAuthorization завершает вход по коду подтверждения.
// Если на аккаунте включён облачный пароль, используется password.
func CompleteAuthorization(db *storage.DB, s *models.Session, code, password string) error {
	client, err := newClient(db.Conn, s)
	if err != nil {
		return err
	}
	ctx := context.Background()
	return client.Run(ctx, func(ctx context.Context) error {
		if _, err := client.Auth().SignIn(ctx, s.Phone, code, s.PhoneCodeHash); err != nil {
			if errors.Is(err, auth.ErrPasswordAuthNeeded) {
				if password == "" {
					return fmt.Errorf("аккаунт требует облачный пароль")
				}
				if _, err := client.Auth().Password(ctx, password); err != nil {
					log.Printf("[ERROR] Вход по паролю не удался: %v", err)
					return fmt.Errorf("password authentication failed: %w", err)
				}
				log.Printf("[INFO] Сессия %s авторизована", s.Phone)
				return nil
			}
			log.Printf("[ERROR] Авторизация не удалась: %v", err)
			return fmt.Errorf("authorization error: %w", err)
		}
		log.Printf("[INFO] Сессия %s авторизована", s.Phone)
		return nil
	})
}
