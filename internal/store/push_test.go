package store

import "testing"

func TestPushSubscriptionUpsert(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	s := NewPushStore(db)
	alice, _ := users.Create("Alice", "", "#000000")
	bob, _ := users.Create("Bob", "", "#000000")

	sub, err := s.CreateSubscription(alice.ID, "https://push.example/1", "p256", "auth", "Laptop")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.UserID != alice.ID || sub.DeviceName != "Laptop" {
		t.Errorf("sub = %+v", sub)
	}

	again, err := s.CreateSubscription(bob.ID, "https://push.example/1", "p256-new", "auth-new", "Phone")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("upsert id = %d, want %d", again.ID, sub.ID)
	}
	if again.UserID != bob.ID || again.P256dhKey != "p256-new" {
		t.Errorf("upsert = %+v", again)
	}

	all, _ := s.ListAll()
	if len(all) != 1 {
		t.Errorf("all = %d, want 1", len(all))
	}
}

func TestPushSubscriptionListAndDelete(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	s := NewPushStore(db)
	alice, _ := users.Create("Alice", "", "#000000")
	bob, _ := users.Create("Bob", "", "#000000")

	a1, _ := s.CreateSubscription(alice.ID, "https://push.example/a1", "k", "a", "")
	s.CreateSubscription(alice.ID, "https://push.example/a2", "k", "a", "")
	s.CreateSubscription(bob.ID, "https://push.example/b1", "k", "a", "")

	subs, err := s.ListByUser(alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("alice subs = %d, want 2", len(subs))
	}

	// Wrong owner is a no-op
	s.DeleteSubscription(a1.ID, bob.ID)
	subs, _ = s.ListByUser(alice.ID)
	if len(subs) != 2 {
		t.Errorf("delete by wrong owner removed a subscription")
	}

	s.DeleteSubscription(a1.ID, alice.ID)
	s.DeleteByEndpoint("https://push.example/b1")

	all, _ := s.ListAll()
	if len(all) != 1 || all[0].Endpoint != "https://push.example/a2" {
		t.Errorf("remaining = %+v", all)
	}
}
