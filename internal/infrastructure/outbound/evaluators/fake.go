package evaluators

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/samber/lo"

	"github.com/sophialabs/mimic/internal/domain/exchange"
)

var (
	fakeFirstNames = []string{"John", "Jane", "Bob", "Alice", "Charlie", "Diana", "Edward", "Fiona"}
	fakeLastNames  = []string{"Smith", "Doe", "Johnson", "Williams", "Brown", "Davis", "Miller", "Wilson"}
	fakeDomains    = []string{"example.com", "test.com", "mock.io", "demo.org"}
	fakeStreets    = []string{"Main St", "Oak Ave", "Elm St", "Park Blvd", "Cedar Ln", "Maple Dr", "Pine Rd", "Lake Way"}
	fakeCities     = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Seattle", "Denver", "Boston"}
	fakeCountries  = []string{"United States", "Canada", "France", "Germany", "Japan", "Brazil", "Australia", "Spain"}
	fakeCompanies  = []string{"Acme Corp", "Globex Inc", "Initech", "Umbrella Corp", "Stark Industries", "Wayne Enterprises", "Cyberdyne Systems", "Tyrell Corp"}
	fakeWords      = []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "theta", "lambda", "sigma", "omega"}
	fakeSentences  = []string{
		"The quick brown fox jumps over the lazy dog.",
		"Lorem ipsum dolor sit amet.",
		"System status nominal.",
	}
)

// fakeGenerators is keyed by "Category.item".
var fakeGenerators = map[string]func() string{
	"Name.firstName": func() string { return lo.Sample(fakeFirstNames) },
	"Name.lastName":  func() string { return lo.Sample(fakeLastNames) },
	"Name.fullName": func() string {
		return lo.Sample(fakeFirstNames) + " " + lo.Sample(fakeLastNames)
	},
	"Name.username": func() string {
		return strings.ToLower(lo.Sample(fakeFirstNames)) + fmt.Sprint(rand.IntN(1000))
	},
	"Internet.emailAddress": func() string {
		return strings.ToLower(lo.Sample(fakeFirstNames)) + fmt.Sprint(rand.IntN(1000)) + "@" + lo.Sample(fakeDomains)
	},
	"Internet.domainName": func() string { return lo.Sample(fakeDomains) },
	"Internet.ipV4Address": func() string {
		return fmt.Sprintf("%d.%d.%d.%d", rand.IntN(256), rand.IntN(256), rand.IntN(256), rand.IntN(256))
	},
	"Address.streetAddress": func() string {
		return fmt.Sprintf("%d %s", rand.IntN(9999)+1, lo.Sample(fakeStreets))
	},
	"Address.city":    func() string { return lo.Sample(fakeCities) },
	"Address.country": func() string { return lo.Sample(fakeCountries) },
	"Address.zipCode": func() string { return fmt.Sprintf("%05d", rand.IntN(100000)) },
	"Company.name":    func() string { return lo.Sample(fakeCompanies) },
	"Lorem.word":      func() string { return lo.Sample(fakeWords) },
	"Lorem.sentence":  func() string { return lo.Sample(fakeSentences) },
	"PhoneNumber.phoneNumber": func() string {
		return fmt.Sprintf("+1-%03d-%03d-%04d", rand.IntN(900)+100, rand.IntN(900)+100, rand.IntN(10000))
	},
}

// Fake produces synthetic data: fake.<Category>.<item>.
type Fake struct{}

func (Fake) Eval(_ context.Context, expr string, _ *exchange.Exchange) (any, error) {
	gen, ok := fakeGenerators[strings.TrimPrefix(expr, "fake.")]
	if !ok {
		return nil, fmt.Errorf("unknown fake data type %q", expr)
	}
	return gen(), nil
}
