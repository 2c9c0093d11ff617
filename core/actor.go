package core

// Actor identifies who owns or acted on a record.
// It is either Anonymous or a User.
type Actor interface {
	// OwnerID returns the opaque owner identifier, empty for Anonymous.
	OwnerID() string
	isActor()
}

// Anonymous is the actor used when no authenticated user is present.
type Anonymous struct{}

func (Anonymous) OwnerID() string { return "" }
func (Anonymous) isActor()        {}

// User is an authenticated actor.
type User struct {
	ID string
}

func (u User) OwnerID() string { return u.ID }
func (User) isActor()          {}

// ActorFromID returns User{id} for a non-empty id and Anonymous otherwise.
func ActorFromID(id string) Actor {
	if id == "" {
		return Anonymous{}
	}
	return User{ID: id}
}

// IsAnonymous reports whether a is nil or Anonymous.
func IsAnonymous(a Actor) bool {
	if a == nil {
		return true
	}
	_, ok := a.(Anonymous)
	return ok
}

// SameActor reports whether a and b identify the same owner.
func SameActor(a, b Actor) bool {
	if IsAnonymous(a) || IsAnonymous(b) {
		return IsAnonymous(a) && IsAnonymous(b)
	}
	return a.OwnerID() == b.OwnerID()
}
