package memory

import "github.com/dcastellanos-dev/tienda-backend/internal/domain"

// GetUser возвращает пользователя или ErrUserInvalid.
func (s *Store) GetUser(id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserInvalid
	}
	return user, nil
}

type userView struct {
	store *Store
}

// NewUserRepository возвращает in-memory реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userView{store: store}
}

func (v *userView) Get(id int64) (domain.User, error) {
	return v.store.GetUser(id)
}

var _ domain.UserRepository = (*userView)(nil)
