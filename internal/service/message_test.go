package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
)

func newMessageService(t *testing.T) (*MessageService, *MembershipService) {
	t.Helper()
	gdb := newTestDB(t)
	members := NewMembershipService(gdb, nil)
	return NewMessageService(gdb, newTestCodec(t), nil, members), members
}

func TestMessageService_Append_EncryptsAtRest(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	const plaintext = "hello, this should never hit disk in the clear"
	msg, err := svc.Append(room.ID, user.ID, plaintext, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if msg.MessageType != models.MessageTypeText {
		t.Errorf("MessageType = %q, want TEXT default", msg.MessageType)
	}
	if msg.EncryptedContent == plaintext {
		t.Error("stored content equals plaintext, message not encrypted")
	}

	var stored models.Message
	if err := svc.db.First(&stored, msg.ID).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	if stored.EncryptedContent == plaintext {
		t.Error("persisted row holds plaintext")
	}
	if got := svc.DecryptForDisplay(&stored); got != plaintext {
		t.Errorf("DecryptForDisplay() = %q, want original plaintext", got)
	}
}

func TestMessageService_Append_NonMemberRejected(t *testing.T) {
	svc, _ := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)

	if _, err := svc.Append(room.ID, user.ID, "hi", ""); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Append() as non-member error = %v, want ErrNotAMember", err)
	}

	// Rejected send must leave no trace
	count, err := svc.Count(room.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after rejected send = %d, want 0", count)
	}
}

func TestMessageService_Append_Validation(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if _, err := svc.Append(9999, user.ID, "hi", ""); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Append() missing room error = %v, want ErrRoomNotFound", err)
	}
	if _, err := svc.Append(room.ID, 9999, "hi", ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Append() missing sender error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.Append(room.ID, user.ID, "hi", "CARRIER_PIGEON"); !errors.Is(err, ErrInvalidMessageType) {
		t.Errorf("Append() bad type error = %v, want ErrInvalidMessageType", err)
	}
}

func TestMessageService_Ordering(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(room.ID, user.ID, fmt.Sprintf("msg-%d", i), ""); err != nil {
			t.Fatalf("Append() %d error = %v", i, err)
		}
	}

	asc, err := svc.ListRoomAscending(room.ID)
	if err != nil {
		t.Fatalf("ListRoomAscending() error = %v", err)
	}
	if len(asc) != 5 {
		t.Fatalf("ListRoomAscending() returned %d messages, want 5", len(asc))
	}
	for i := 1; i < len(asc); i++ {
		if asc[i].ID <= asc[i-1].ID {
			t.Errorf("ascending order violated at index %d: %d <= %d", i, asc[i].ID, asc[i-1].ID)
		}
	}

	desc, err := svc.ListRoom(room.ID, 0, 50)
	if err != nil {
		t.Fatalf("ListRoom() error = %v", err)
	}
	if len(desc) != 5 {
		t.Fatalf("ListRoom() returned %d messages, want 5", len(desc))
	}
	if desc[0].ID != asc[len(asc)-1].ID {
		t.Errorf("ListRoom() first = %d, want newest %d", desc[0].ID, asc[len(asc)-1].ID)
	}
}

func TestMessageService_Pagination(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	for i := 0; i < 7; i++ {
		if _, err := svc.Append(room.ID, user.ID, fmt.Sprintf("msg-%d", i), ""); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	page0, err := svc.ListRoom(room.ID, 0, 3)
	if err != nil {
		t.Fatalf("ListRoom() page 0 error = %v", err)
	}
	page1, err := svc.ListRoom(room.ID, 1, 3)
	if err != nil {
		t.Fatalf("ListRoom() page 1 error = %v", err)
	}
	page2, err := svc.ListRoom(room.ID, 2, 3)
	if err != nil {
		t.Fatalf("ListRoom() page 2 error = %v", err)
	}
	if len(page0) != 3 || len(page1) != 3 || len(page2) != 1 {
		t.Errorf("page sizes = %d/%d/%d, want 3/3/1", len(page0), len(page1), len(page2))
	}

	seen := map[uint]bool{}
	for _, page := range [][]models.Message{page0, page1, page2} {
		for _, m := range page {
			if seen[m.ID] {
				t.Errorf("message %d appeared on two pages", m.ID)
			}
			seen[m.ID] = true
		}
	}

	// Negative page and oversized page size fall back to sane values
	if _, err := svc.ListRoom(room.ID, -1, 10000); err != nil {
		t.Errorf("ListRoom() with bad paging error = %v", err)
	}

	count, err := svc.Count(room.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 7 {
		t.Errorf("Count() = %d, want 7", count)
	}
}

func TestMessageService_CorruptCiphertextFallsBack(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if _, err := svc.Append(room.ID, user.ID, "readable", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	corrupt := models.Message{RoomID: room.ID, SenderID: user.ID, EncryptedContent: "not-real-ciphertext", MessageType: models.MessageTypeText}
	if err := svc.db.Create(&corrupt).Error; err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	history, err := svc.History(room.ID, 0, 50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d messages, want 2", len(history))
	}

	// One corrupt row degrades to the placeholder, the rest stay readable
	var sawFallback, sawReadable bool
	for _, m := range history {
		switch m.Content {
		case DecryptFallback:
			sawFallback = true
		case "readable":
			sawReadable = true
		}
		if m.Username != "alice" {
			t.Errorf("Username = %q, want alice", m.Username)
		}
	}
	if !sawFallback || !sawReadable {
		t.Errorf("history = %+v, want one fallback and one readable message", history)
	}
}

func TestMessageService_Decrypt(t *testing.T) {
	svc, _ := newMessageService(t)

	blob, err := svc.codec.Encrypt("raw blob")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if got := svc.Decrypt(blob); got != "raw blob" {
		t.Errorf("Decrypt() = %q, want raw blob", got)
	}
	if got := svc.Decrypt("garbage"); got != DecryptFallback {
		t.Errorf("Decrypt() garbage = %q, want fallback", got)
	}
}

func TestMessageService_Delete(t *testing.T) {
	svc, members := newMessageService(t)
	user := seedUser(t, svc.db, "alice")
	room := seedRoom(t, svc.db, "general", false, user.ID)
	if _, err := members.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	first, err := svc.Append(room.ID, user.ID, "first", "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := svc.Append(room.ID, user.ID, "second", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := svc.Delete(first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	count, err := svc.Count(room.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after delete = %d, want 1", count)
	}
}
