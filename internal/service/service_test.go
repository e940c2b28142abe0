package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/vnyvk2/ChatServiceApp/internal/auth"
	"github.com/vnyvk2/ChatServiceApp/internal/crypto"
	"github.com/vnyvk2/ChatServiceApp/internal/db"
	"github.com/vnyvk2/ChatServiceApp/internal/models"

	"gorm.io/gorm"
)

// newTestDB opens an in-memory sqlite database scoped to the test name,
// so tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

func newTestCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	c, err := crypto.New("")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := models.User{
		Username:     username,
		Email:        username + "@example.com",
		DisplayName:  username,
		PasswordHash: hash,
		Status:       models.StatusOffline,
	}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return &u
}

func seedRoom(t *testing.T, gdb *gorm.DB, name string, isPrivate bool, creatorID uint) *models.Room {
	t.Helper()
	r := models.Room{
		Name:      name,
		RoomType:  models.RoomTypeGroup,
		IsPrivate: isPrivate,
		CreatedBy: creatorID,
	}
	if err := gdb.Create(&r).Error; err != nil {
		t.Fatalf("seed room %s: %v", name, err)
	}
	return &r
}
