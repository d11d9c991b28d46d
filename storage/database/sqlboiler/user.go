package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/user"
)

const userTable = "user"

var (
	userColumns     = []string{"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}
	userOrderFields = map[string]string{
		"name":       "name",
		"username":   "username",
		"email":      "email",
		"created_at": "created_at",
		"last_login": "last_login",
	}
)

type userRow struct {
	ID           string            `boil:"id"`
	Name         null.String       `boil:"name"`
	Username     null.String       `boil:"username"`
	Email        null.String       `boil:"email"`
	IsActive     bool              `boil:"is_active"`
	Roles        types.StringArray `boil:"roles"`
	PasswordHash null.Bytes        `boil:"password_hash"`
	CreatedAt    time.Time         `boil:"created_at"`
	UpdatedAt    time.Time         `boil:"updated_at"`
	LastLogin    null.Time         `boil:"last_login"`
}

func (r userRow) values() []interface{} {
	return []interface{}{r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec}}
}

func (repo userRepository) boil(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         nullString(usr.Name),
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC().Truncate(time.Microsecond),
		UpdatedAt:    usr.UpdatedAt.UTC().Truncate(time.Microsecond),
		LastLogin:    null.NewTime(usr.LastLogin.UTC().Truncate(time.Microsecond), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(r userRow) user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	mods := []qm.QueryMod{
		qm.Select("username", "email"),
		qm.From(quote(userTable)),
		qm.Expr(qm.Where("username = ?", username), qm.Or("email = ?", email)),
	}
	if len(excludedUsers) > 0 {
		ids := make([]interface{}, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		mods = append(mods, qm.WhereNotIn("id NOT IN ?", ids...))
	}

	var taken []struct {
		Username null.String `boil:"username"`
		Email    null.String `boil:"email"`
	}
	if err := all(ctx, repo.getExec(exec), &taken, mods...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	for _, t := range taken {
		if email != "" && t.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	now := time.Now().UTC()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = now
	}
	r := repo.boil(usr)
	if _, err := queries.Raw(insertQuery(userTable, userColumns), r.values()...).ExecContext(ctx, repo.getExec(exec)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(r), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	mods := []qm.QueryMod{qm.Select(userColumns...), qm.From(quote(userTable))}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where("name ILIKE ? OR username ILIKE ? OR email ILIKE ?", val, val, val)))
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleMods := make([]qm.QueryMod, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleMods = append(roleMods, qm.Or2(qm.Where("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ?)", role+"%")))
			}
			mods = append(mods, qm.Expr(roleMods...))
		}
		if filter.IsActive != nil {
			mods = append(mods, qm.Where("is_active = ?", *filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			mods = append(mods, qm.Where("created_at >= ?", filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			mods = append(mods, qm.Where("created_at <= ?", filter.CreatedTo.UTC()))
		}
	}
	mods = append(mods, orderBy(ordering, userOrderFields, "created_at DESC"))

	var rows []userRow
	if err := all(ctx, repo.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.unboil(r))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	mods := []qm.QueryMod{qm.Select(userColumns...), qm.From(quote(userTable))}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		mods = append(mods, qm.Where("id = ?", filter.ID))
	case filter.Username != "":
		mods = append(mods, qm.Where("username = ?", filter.Username))
	case filter.Email != "":
		mods = append(mods, qm.Where("email = ?", filter.Email))
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		mods = append(mods, qm.Where("username = ? OR email = ?", uname, email))
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	if err := one(ctx, repo.getExec(exec), &r, mods...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(r), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := repo.boil(usr)
	vals := r.values()
	q := updateQuery(userTable, userColumns[1:], "id")
	res, err := queries.Raw(q, append(vals[1:], r.ID)...).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.unboil(r), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	q := newQuery(qm.From(quote(userTable)), qm.WhereIn("id IN ?", valid...))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}
