package model

// SessionView is what getSession returns to clients.
type SessionView struct {
	ID                 string       `json:"id"`
	ExternalInstanceID string       `json:"externalInstanceId"`
	ScoreToWin         int          `json:"scoreToWin"`
	Completed          bool         `json:"completed"`
	Round              int          `json:"round"`
	Phase              string       `json:"phase"`
	RoleReady          bool         `json:"roleReady"`
	GuessesReady       bool         `json:"guessesReady"`
	Roles              []RoleView   `json:"roles"`
	Players            []PlayerView `json:"players"`
}

type RoleView struct {
	ID          string `json:"id"`
	RoleID      string `json:"roleId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Special     bool   `json:"special"`
	ImageURL    string `json:"imageUrl"`
}

type PlayerView struct {
	ID             string    `json:"id"`
	ExternalUserID string    `json:"externalUserId"`
	DisplayName    string    `json:"displayName"`
	AvatarURL      string    `json:"avatarUrl"`
	Cosmetic       string    `json:"cosmetic"`
	CosmeticURL    string    `json:"cosmeticUrl"`
	IsHost         bool      `json:"isHost"`
	Score          int       `json:"score"`
	HasRole        bool      `json:"hasRole"`
	Submitted      bool      `json:"submitted"`
	RoundCompleted bool      `json:"roundCompleted"`
	Role           *RoleView `json:"role"`
}

// RoundResults is the per-player guess matrix of the current round.
type RoundResults struct {
	SessionID string      `json:"sessionId"`
	Round     int         `json:"round"`
	Rows      []ResultRow `json:"rows"`
}

type ResultRow struct {
	PlayerID       string        `json:"playerId"`
	ExternalUserID string        `json:"externalUserId"`
	DisplayName    string        `json:"displayName"`
	AvatarURL      string        `json:"avatarUrl"`
	RoleName       string        `json:"roleName"`
	Special        bool          `json:"special"`
	Completed      bool          `json:"completed"`
	Guesses        []ResultGuess `json:"guesses"`
	Points         int           `json:"points"`
}

type ResultGuess struct {
	ID                   string `json:"id"`
	TargetPlayerID       string `json:"targetPlayerId"`
	TargetName           string `json:"targetName"`
	GuessedSessionRoleID string `json:"guessedSessionRoleId"`
	GuessedRoleName      string `json:"guessedRoleName"`
	Correct              bool   `json:"correct"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}
