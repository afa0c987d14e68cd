// internal/testutil/fixtures.go
package testutil

// Textos de prueba (valores primitivos solamente, sin dependencias de domain)

// FixtureObfuscatedPost mezcla un enlace markdown con un fragmento truncado.
const FixtureObfuscatedPost = "Urgent: verify now [click](https://secure-login.badsite.com/verify) or http://secure-login[dot"

// FixtureBankPost dispara varias reglas léxicas (palabras clave, IBAN, teléfono).
const FixtureBankPost = "Your account is suspended! Verify your password at hxxp today. " +
	"Send the fee to TR33 0006 1005 1978 6457 8413 26 or call 05321234567."

// FixtureCleanPost no contiene ninguna URL ni palabra clave.
const FixtureCleanPost = "Had a lovely walk by the river this morning, photos later."

// FixtureValidURLs son URLs que el normalizador debe aceptar tal cual.
var FixtureValidURLs = []string{
	"https://example.com",
	"https://example.com/path",
	"https://subdomain.example.com/api/v1",
	"http://test.example.com:8080",
}

// FixtureInvalidHosts fallan la validación de host.
var FixtureInvalidHosts = []string{
	"http://a.b",
	"http://localhost",
	"https://x.y.com",
	"ftp://example.com",
}
