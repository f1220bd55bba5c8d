package authz

import (
	"testing"

	"github.com/google/uuid"
)

func TestAuthorize(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()

	anon := Identity{}
	user := Identity{Authenticated: true, AccountID: owner}
	admin := Identity{Authenticated: true, AccountID: stranger, Staff: true}

	tests := []struct {
		name   string
		id     Identity
		action Action
		res    Resource
		want   Decision
	}{
		{"anonymous reads published post", anon, ActionRead, Resource{Kind: KindPost, Published: true}, Allow},
		{"anonymous cannot read draft", anon, ActionRead, Resource{Kind: KindPost, OwnerID: owner}, Deny},
		{"anonymous cannot comment", anon, ActionCreate, Resource{Kind: KindComment}, Deny},
		{"anonymous cannot edit", anon, ActionUpdate, Resource{Kind: KindPost, Published: true}, Deny},

		{"user reads published post", user, ActionRead, Resource{Kind: KindPost, Published: true}, Allow},
		{"user reads own draft", user, ActionRead, Resource{Kind: KindPost, OwnerID: owner}, Allow},
		{"user cannot read others' drafts", user, ActionRead, Resource{Kind: KindPost, OwnerID: stranger}, Deny},
		{"user creates comment", user, ActionCreate, Resource{Kind: KindComment}, Allow},
		{"user cannot create post", user, ActionCreate, Resource{Kind: KindPost}, Deny},
		{"user cannot create category", user, ActionCreate, Resource{Kind: KindCategory}, Deny},
		{"user edits own comment", user, ActionUpdate, Resource{Kind: KindComment, OwnerID: owner}, Allow},
		{"user deletes own comment", user, ActionDelete, Resource{Kind: KindComment, OwnerID: owner}, Allow},
		{"user cannot edit others' comments", user, ActionUpdate, Resource{Kind: KindComment, OwnerID: stranger}, Deny},
		{"user edits own profile", user, ActionUpdate, Resource{Kind: KindProfile, OwnerID: owner}, Allow},
		{"user cannot edit others' profiles", user, ActionUpdate, Resource{Kind: KindProfile, OwnerID: stranger}, Deny},
		{"user cannot edit own published post", user, ActionUpdate, Resource{Kind: KindPost, OwnerID: owner, Published: true}, Deny},

		{"staff edits any post", admin, ActionUpdate, Resource{Kind: KindPost, OwnerID: owner, Published: true}, Allow},
		{"staff deletes any comment", admin, ActionDelete, Resource{Kind: KindComment, OwnerID: owner}, Allow},
		{"staff reads any draft", admin, ActionRead, Resource{Kind: KindPost, OwnerID: owner}, Allow},
		{"staff creates categories", admin, ActionCreate, Resource{Kind: KindCategory}, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.id, tt.action, tt.res); got != tt.want {
				t.Errorf("Authorize(%+v, %s, %+v) = %v, want %v", tt.id, tt.action, tt.res, got, tt.want)
			}
		})
	}
}

func TestStaffFlagRequiresAuthentication(t *testing.T) {
	// A forged identity claiming staff without authentication gets
	// anonymous treatment.
	forged := Identity{Staff: true}
	if got := Authorize(forged, ActionDelete, Resource{Kind: KindPost, Published: true}); got != Deny {
		t.Error("unauthenticated staff flag must not grant access")
	}
}
