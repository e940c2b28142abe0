package service

import (
	"errors"
	"testing"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
)

func TestMembershipService_AddMember(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	m, err := svc.AddMember(room.ID, user.ID, "")
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if m.Role != models.RoleMember {
		t.Errorf("Role = %q, want MEMBER default", m.Role)
	}
	if !m.IsActive {
		t.Error("IsActive = false, want true")
	}
}

func TestMembershipService_AddMember_Idempotent(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	first, err := svc.AddMember(room.ID, user.ID, models.RoleMember)
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	second, err := svc.AddMember(room.ID, user.ID, models.RoleMember)
	if err != nil {
		t.Fatalf("AddMember() second call error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second AddMember() created new row %d, want existing %d", second.ID, first.ID)
	}

	var count int64
	gdb.Model(&models.Membership{}).Where("room_id = ? AND user_id = ?", room.ID, user.ID).Count(&count)
	if count != 1 {
		t.Errorf("membership rows = %d, want exactly 1", count)
	}
}

func TestMembershipService_AddMember_ReactivatesAfterLeave(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	if _, err := svc.AddMember(room.ID, user.ID, models.RoleModerator); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := svc.RemoveMember(room.ID, user.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}

	m, err := svc.GetMembership(room.ID, user.ID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if m.IsActive {
		t.Error("IsActive after leave = true, want false")
	}
	if m.LeftAt == nil {
		t.Error("LeftAt after leave = nil, want timestamp")
	}

	rejoined, err := svc.AddMember(room.ID, user.ID, models.RoleMember)
	if err != nil {
		t.Fatalf("AddMember() rejoin error = %v", err)
	}
	if !rejoined.IsActive {
		t.Error("IsActive after rejoin = false, want true")
	}
	if rejoined.LeftAt != nil {
		t.Errorf("LeftAt after rejoin = %v, want nil", rejoined.LeftAt)
	}
	if rejoined.ID != m.ID {
		t.Errorf("rejoin created new row %d, want reactivated %d", rejoined.ID, m.ID)
	}
}

func TestMembershipService_AddMember_Validation(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	if _, err := svc.AddMember(room.ID, user.ID, "OVERLORD"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("AddMember() with bad role error = %v, want ErrInvalidRole", err)
	}
	if _, err := svc.AddMember(9999, user.ID, models.RoleMember); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("AddMember() missing room error = %v, want ErrRoomNotFound", err)
	}
	if _, err := svc.AddMember(room.ID, 9999, models.RoleMember); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("AddMember() missing user error = %v, want ErrUserNotFound", err)
	}
}

func TestMembershipService_RemoveMember_Absent(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	// Leaving a room never joined is a no-op, not an error
	if err := svc.RemoveMember(room.ID, user.ID); err != nil {
		t.Errorf("RemoveMember() absent error = %v, want nil", err)
	}
	// Leaving twice is also fine
	if _, err := svc.AddMember(room.ID, user.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := svc.RemoveMember(room.ID, user.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if err := svc.RemoveMember(room.ID, user.ID); err != nil {
		t.Errorf("RemoveMember() second call error = %v, want nil", err)
	}
}

func TestMembershipService_CanAccess(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	member := seedUser(t, gdb, "alice")
	outsider := seedUser(t, gdb, "bob")
	public := seedRoom(t, gdb, "general", false, member.ID)
	private := seedRoom(t, gdb, "secret", true, member.ID)
	if _, err := svc.AddMember(private.ID, member.ID, models.RoleAdmin); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	tests := []struct {
		name   string
		userID uint
		roomID uint
		want   bool
	}{
		{"outsider can access public room", outsider.ID, public.ID, true},
		{"member can access private room", member.ID, private.ID, true},
		{"outsider cannot access private room", outsider.ID, private.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CanAccess(tt.userID, tt.roomID)
			if err != nil {
				t.Fatalf("CanAccess() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAccess() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := svc.CanAccess(member.ID, 9999); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("CanAccess() missing room error = %v, want ErrRoomNotFound", err)
	}
}

func TestMembershipService_CanAccess_InactiveMember(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	private := seedRoom(t, gdb, "secret", true, user.ID)

	if _, err := svc.AddMember(private.ID, user.ID, models.RoleMember); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := svc.RemoveMember(private.ID, user.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}

	ok, err := svc.CanAccess(user.ID, private.ID)
	if err != nil {
		t.Fatalf("CanAccess() error = %v", err)
	}
	if ok {
		t.Error("CanAccess() after leave = true, want false")
	}
}

func TestMembershipService_SetRole(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	user := seedUser(t, gdb, "alice")
	room := seedRoom(t, gdb, "general", false, user.ID)

	if err := svc.SetRole(room.ID, user.ID, models.RoleModerator); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("SetRole() without membership error = %v, want ErrMembershipNotFound", err)
	}

	if _, err := svc.AddMember(room.ID, user.ID, models.RoleMember); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := svc.SetRole(room.ID, user.ID, "OVERLORD"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("SetRole() with bad role error = %v, want ErrInvalidRole", err)
	}
	if err := svc.SetRole(room.ID, user.ID, models.RoleModerator); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	m, err := svc.GetMembership(room.ID, user.ID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if m.Role != models.RoleModerator {
		t.Errorf("Role = %q, want MODERATOR", m.Role)
	}
}

func TestMembershipService_Listings(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewMembershipService(gdb, nil)
	alice := seedUser(t, gdb, "alice")
	bob := seedUser(t, gdb, "bob")
	room1 := seedRoom(t, gdb, "general", false, alice.ID)
	room2 := seedRoom(t, gdb, "random", false, alice.ID)

	for _, userID := range []uint{alice.ID, bob.ID} {
		if _, err := svc.AddMember(room1.ID, userID, ""); err != nil {
			t.Fatalf("AddMember() error = %v", err)
		}
	}
	if _, err := svc.AddMember(room2.ID, alice.ID, ""); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := svc.RemoveMember(room1.ID, bob.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}

	members, err := svc.ListActiveMembers(room1.ID)
	if err != nil {
		t.Fatalf("ListActiveMembers() error = %v", err)
	}
	if len(members) != 1 || members[0].Username != "alice" {
		t.Errorf("ListActiveMembers() = %v, want just alice", members)
	}

	rooms, err := svc.ListActiveRoomsForUser(alice.ID)
	if err != nil {
		t.Fatalf("ListActiveRoomsForUser() error = %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("ListActiveRoomsForUser() returned %d rooms, want 2", len(rooms))
	}

	count, err := svc.MemberCount(room1.ID)
	if err != nil {
		t.Fatalf("MemberCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("MemberCount() = %d, want 1", count)
	}
}
