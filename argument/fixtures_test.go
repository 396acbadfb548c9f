package argument

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Color int

const (
	Red Color = iota
	Green
	Blue
)

type Animal interface {
	Sound() string
}

type Dog struct{ Name string }

func (d *Dog) Sound() string { return d.Name + " says woof" }

type Cat struct{}

func (Cat) Sound() string { return "meow" }

type Point struct {
	X, Y int
}

func (p Point) Sum() int { return p.X + p.Y }

func (p *Point) Scale(k int) int {
	p.X *= k
	p.Y *= k
	return p.X + p.Y
}

type Person struct {
	Name     string
	Years    int
	Active   bool
	Favorite Color
	Friend   *Person
	Friends  []*Person
	Pet      Animal
	Notes    map[string]string
	Created  *timestamppb.Timestamp
	Nickname *wrapperspb.StringValue
	Born     time.Time
}

func (p *Person) GetBestFriend() *Person      { return p.Friend }
func (p *Person) GetName() string             { return p.Name }
func (p *Person) Age() int                    { return p.Years }
func (p *Person) IsActive() bool              { return p.Active }
func (p *Person) FavoriteColor() Color        { return p.Favorite }
func (p *Person) GetPet() Animal              { return p.Pet }
func (p *Person) GetFriends() []*Person       { return p.Friends }
func (p *Person) GetNotes() map[string]string { return p.Notes }
func (p *Person) GetCreated() *timestamppb.Timestamp {
	return p.Created
}
func (p *Person) GetNickname() *wrapperspb.StringValue { return p.Nickname }
func (p *Person) Birthday() time.Time                  { return p.Born }
func (p *Person) Location() Point                      { return Point{X: p.Years, Y: len(p.Name)} }
func (p *Person) Rank() int8                           { return int8(p.Years / 10) }
func (p *Person) Shift(i int) int8                     { return int8(p.Years + i) }
func (p *Person) Echo(v any) any                       { return v }

// Nth panics when i is out of range.
func (p *Person) Nth(i int) *Person { return p.Friends[i] }

func (p *Person) Note(key string) (string, error) {
	if v, ok := p.Notes[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no note %q", key)
}

func (p *Person) Greeting(prefix string, names ...string) string {
	return prefix + " " + strings.Join(names, ",") + " from " + p.Name
}

func (p *Person) IsOlderThan(other *Person) bool { return p.Years > other.Years }

func (p *Person) Describe() string { return fmt.Sprintf("%s (%d)", p.Name, p.Years) }

// Methods that cannot be recorded or whose results cannot be proxied.
func (p *Person) Touch()                     {}
func (p *Person) Pair() (int, int)           { return 0, 0 }
func (p *Person) Callback() func() string    { return p.GetName }
func (p *Person) Marker() *struct{}          { return &struct{}{} }
func (p *Person) Fail() (int, error)         { return 0, errors.New("always") }
func (p *Person) Channel() chan int          { return nil }
func (p *Person) Lookup() map[string]*Person { return nil }

func newFamily() (alice, bob, carol *Person) {
	carol = &Person{Name: "carol", Years: 12}
	bob = &Person{Name: "bob", Years: 40, Friend: carol, Active: true, Favorite: Blue,
		Pet: Cat{}, Notes: map[string]string{"hobby": "chess"}}
	alice = &Person{Name: "alice", Years: 35, Friend: bob, Friends: []*Person{bob, carol},
		Pet: &Dog{Name: "rex"}, Favorite: Green,
		Created:  timestamppb.New(time.Unix(1700000000, 0)),
		Nickname: wrapperspb.String("al"),
		Born:     time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)}
	return alice, bob, carol
}

func newTestRegistry(opts ...Option) *Registry {
	opts = append([]Option{WithSweepInterval(0), WithAsyncCompile(false)}, opts...)
	return NewRegistry(opts...)
}
