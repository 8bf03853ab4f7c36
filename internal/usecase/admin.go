package usecase

import (
	"context"
	"encoding/json"
	"time"

	"chatgpt-telegram-relay/internal/domain"
)

const (
	groupAdminTTL = 30 * time.Second

	RoleMember        = "member"
	RoleAdministrator = "administrator"
	RoleCreator       = "creator"
)

// chatRole resolves the group role of userID from the cached administrator
// list, refreshing the cache from the messenger when it is empty or stale.
func (s *Service) chatRole(ctx context.Context, st *State, userID int64) (string, error) {
	admins := s.cachedAdmins(ctx, st)
	if len(admins) == 0 {
		fetched, err := s.messenger.FetchAdministrators(ctx, st.Token, st.Identity.ChatID)
		if err != nil {
			return "", newError(ErrorCollaborator, "fetch_administrators", err)
		}
		admins = fetched
		s.cacheAdmins(ctx, st, admins)
	}
	for _, a := range admins {
		if a.User.ID == userID {
			return a.Status, nil
		}
	}
	return RoleMember, nil
}

func (s *Service) cachedAdmins(ctx context.Context, st *State) []domain.ChatAdmin {
	key := st.Identity.GroupAdminKey()
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger(ctx).Warn("read admin cache failed", "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	var admins []domain.ChatAdmin
	if err := json.Unmarshal([]byte(raw), &admins); err != nil {
		s.logger(ctx).Warn("ignoring malformed admin cache", "key", key, "err", err)
		return nil
	}
	return admins
}

func (s *Service) cacheAdmins(ctx context.Context, st *State, admins []domain.ChatAdmin) {
	key := st.Identity.GroupAdminKey()
	blob, err := json.Marshal(admins)
	if err != nil {
		s.logger(ctx).Warn("encode admin cache failed", "err", err)
		return
	}
	if err := s.store.Put(ctx, key, string(blob), groupAdminTTL); err != nil {
		s.logger(ctx).Warn("write admin cache failed", "key", key, "err", err)
	}
}
