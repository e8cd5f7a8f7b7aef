package ports

// SecurityPort encrypts and decrypts the extracted KYC personal data we
// persist. Business logic only sees plaintext; swapping the cipher never
// touches the services.
type SecurityPort interface {
	// Encrypt takes a plaintext and returns a secure, encrypted ciphertext.
	Encrypt(plaintext []byte) (ciphertext []byte, err error)

	// Decrypt takes a ciphertext and returns the original plaintext.
	Decrypt(ciphertext []byte) (plaintext []byte, err error)
}
