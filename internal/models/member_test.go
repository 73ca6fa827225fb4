package models

import "testing"

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   string
		account    string
		pending    string
		want       string
		wantSource NameSource
	}{
		{
			name:       "snapshot wins over everything",
			snapshot:   "Siti (group)",
			account:    "Siti",
			pending:    "siti-invite",
			want:       "Siti (group)",
			wantSource: NameSourceSnapshot,
		},
		{
			name:       "account name when snapshot empty",
			account:    "Budi",
			pending:    "budi-invite",
			want:       "Budi",
			wantSource: NameSourceAccount,
		},
		{
			name:       "legacy pending name as last source",
			pending:    "Dewi",
			want:       "Dewi",
			wantSource: NameSourcePending,
		},
		{
			name:       "nothing resolves",
			wantSource: NameSourceNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDisplayName(tt.snapshot, tt.account, tt.pending)
			if got.Source != tt.wantSource {
				t.Errorf("Source = %v, want %v", got.Source, tt.wantSource)
			}
			if got.Known() != (tt.wantSource != NameSourceNone) {
				t.Errorf("Known() = %v inconsistent with source %v", got.Known(), got.Source)
			}
			if tt.wantSource != NameSourceNone && got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestResolvedNameUnknownFallback(t *testing.T) {
	var r ResolvedName
	if r.Known() {
		t.Error("Zero ResolvedName reports Known")
	}
	if r.String() != "Unknown" {
		t.Errorf("String() = %q, want Unknown", r.String())
	}
}

func TestMemberDisplayName(t *testing.T) {
	m := Member{PendingName: "invited-name"}
	if got := m.DisplayName().String(); got != "invited-name" {
		t.Errorf("DisplayName = %q, want pending fallback", got)
	}

	m.User = &User{Name: "Live Account"}
	if got := m.DisplayName(); got.Name != "Live Account" || got.Source != NameSourceAccount {
		t.Errorf("DisplayName = %+v, want live account name", got)
	}

	m.Name = "Snapshot"
	if got := m.DisplayName(); got.Name != "Snapshot" || got.Source != NameSourceSnapshot {
		t.Errorf("DisplayName = %+v, want snapshot name", got)
	}
}

func TestEligibleForPayments(t *testing.T) {
	tests := []struct {
		status MemberStatus
		want   bool
	}{
		{MemberStatusActive, true},
		{MemberStatusPending, true},
		{MemberStatusInvited, false},
		{MemberStatusRemoved, false},
	}
	for _, tt := range tests {
		m := Member{Status: tt.status}
		if got := m.EligibleForPayments(); got != tt.want {
			t.Errorf("EligibleForPayments(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
