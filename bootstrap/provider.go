package bootstrap

// TLSProvider enables TLS on one concrete backend type.  EnableTLS must
// leave the rest of the configuration (options, timeout, initializer)
// as it found it.
type TLSProvider[B any] interface {
	EnableTLS(backend B) B
}

// TLSProviderFunc adapts a function to the TLSProvider interface.
type TLSProviderFunc[B any] func(backend B) B

// EnableTLS calls f(backend).
func (f TLSProviderFunc[B]) EnableTLS(backend B) B { return f(backend) }

// InsecureNoTLS is the provider for bootstraps that must stay in
// plaintext.  Asking it to enable TLS panics with ErrInsecureNoTLS, so a
// TLS request can never silently yield an unencrypted connection.
type InsecureNoTLS[B any] struct{}

// EnableTLS always panics.
func (InsecureNoTLS[B]) EnableTLS(B) B {
	panic(ErrInsecureNoTLS)
}
