package profiles

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signpost-ci/signpost/pkg/asc"
)

func makeProfile(id string, expires time.Time, state string, certIDs ...string) asc.Profile {
	var p asc.Profile
	p.ID = id
	p.Type = "profiles"
	p.Attributes.Name = "profile " + id
	p.Attributes.ProfileState = state
	p.Attributes.ExpirationDate = asc.Date(expires)
	for _, c := range certIDs {
		p.Relationships.Certificates.Data = append(p.Relationships.Certificates.Data, asc.Data{ID: c, Type: "certificates"})
	}
	return p
}

func TestReconcileKeepsOnlyValidProfile(t *testing.T) {
	now := time.Now()
	valid := makeProfile("GOOD", now.AddDate(1, 0, 0), "ACTIVE", "CERT1")
	expired := makeProfile("EXPIRED", now.AddDate(0, 0, -1), "ACTIVE", "CERT1")
	expiring := makeProfile("EXPIRING", now.Add(10*24*time.Hour), "ACTIVE", "CERT1")
	invalidState := makeProfile("INVALID", now.AddDate(1, 0, 0), "INVALID", "CERT1")
	badCert := makeProfile("BADCERT", now.AddDate(1, 0, 0), "ACTIVE", "REVOKED")
	validCerts := map[string]bool{"CERT1": true}

	orders := [][]asc.Profile{
		{valid, expired, expiring, invalidState, badCert},
		{badCert, invalidState, expiring, expired, valid},
		{expired, valid, badCert, expiring, invalidState},
	}
	for i, order := range orders {
		best, doomed := Reconcile(order, validCerts, now)
		require.NotNil(t, best, "order %d", i)
		assert.Equal(t, "GOOD", best.ID, "order %d", i)
		assert.Len(t, doomed, 4, "order %d", i)
	}
}

func TestReconcileKeepsMostRecentlyExpiring(t *testing.T) {
	now := time.Now()
	validCerts := map[string]bool{"CERT1": true}
	var candidates []asc.Profile
	for i := 1; i <= 4; i++ {
		candidates = append(candidates, makeProfile(fmt.Sprintf("P%d", i), now.AddDate(0, i+1, 0), "ACTIVE", "CERT1"))
	}

	best, doomed := Reconcile(candidates, validCerts, now)
	require.NotNil(t, best)
	assert.Equal(t, "P4", best.ID)
	require.Len(t, doomed, 3)
	for _, p := range doomed {
		assert.NotEqual(t, "P4", p.ID)
	}
}

func TestReconcileAllInvalid(t *testing.T) {
	now := time.Now()
	best, doomed := Reconcile([]asc.Profile{
		makeProfile("A", now.AddDate(0, 0, -30), "ACTIVE", "CERT1"),
		makeProfile("B", now.AddDate(1, 0, 0), "INVALID", "CERT1"),
	}, map[string]bool{"CERT1": true}, now)
	assert.Nil(t, best)
	assert.Len(t, doomed, 2)
}

func TestReconcileEmpty(t *testing.T) {
	best, doomed := Reconcile(nil, nil, time.Now())
	assert.Nil(t, best)
	assert.Empty(t, doomed)
}
