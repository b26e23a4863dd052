package verification

import "go.uber.org/fx"

var Module = fx.Options(
	fx.Provide(
		NewLinkSigner,
		provideSignatureVerifier,
		NewVerifier,
	),
)

func provideSignatureVerifier(signer *LinkSigner) SignatureVerifier {
	return signer
}
