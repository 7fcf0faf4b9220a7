package service

import (
	"fmt"
	"strconv"
	"strings"
)

// AssetResolver maps roles, cosmetics and avatars to display URLs. It holds no state.
type AssetResolver struct {
	baseURL   string
	avatarCDN string
}

func NewAssetResolver(baseURL, avatarCDN string) *AssetResolver {
	return &AssetResolver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		avatarCDN: strings.TrimRight(avatarCDN, "/"),
	}
}

func (a *AssetResolver) RoleImageURL(roleName string) string {
	return fmt.Sprintf("%s/roles/%s.png", a.baseURL, strings.ToLower(roleName))
}

func (a *AssetResolver) CosmeticImageURL(cosmetic string) string {
	if cosmetic == "" {
		return ""
	}
	return fmt.Sprintf("%s/cosmetics/%s.png", a.baseURL, cosmetic)
}

// AvatarURL builds a CDN avatar URL from a user id and avatar hash. Users
// without a hash get one of the six default avatars, picked from the id.
func (a *AssetResolver) AvatarURL(userID, avatarHash string) string {
	if avatarHash != "" {
		return fmt.Sprintf("%s/avatars/%s/%s.png?size=256", a.avatarCDN, userID, avatarHash)
	}
	id, _ := strconv.ParseUint(userID, 10, 64)
	return fmt.Sprintf("%s/embed/avatars/%d.png", a.avatarCDN, (id>>22)%6)
}

// ResolveAvatar keeps full URLs and treats anything else as an avatar hash.
func (a *AssetResolver) ResolveAvatar(userID, avatar string) string {
	if strings.Contains(avatar, "://") || strings.HasPrefix(avatar, "/") {
		return avatar
	}
	return a.AvatarURL(userID, avatar)
}
