package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Polygon mainnet exchange contracts that verify order signatures.
const (
	PolygonChainID         = 137
	ExchangeAddress        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	exchangeDomainName = "Polymarket CTF Exchange"
	authDomainName     = "ClobAuthDomain"
	domainVersion      = "1"

	// ClobAuthMessage is the fixed statement every L1 auth signature attests.
	ClobAuthMessage = "This message attests that I control the given wallet"
)

// Signature types understood by the exchange.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

var (
	// EIP712Domain for the auth domain carries no verifying contract.
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)

	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// OrderPayload is the struct the exchange contract hashes. Large numbers are
// kept as decimal strings.
type OrderPayload struct {
	Salt          string
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   string
	TakerAmount   string
	Expiration    string
	Nonce         string
	FeeRateBps    string
	Side          int // 0 = BUY, 1 = SELL
	SignatureType int
}

// Signer produces the EIP-712 signatures the CLOB expects from a wallet.
type Signer struct {
	privateKey  *ecdsa.PrivateKey
	address     common.Address
	chainID     int64
	authDomain  []byte
	orderDomain []byte
}

// NewSigner builds a Signer for chainID whose orders are verified by the
// exchange contract at exchange. An empty exchange selects ExchangeAddress.
func NewSigner(privateKeyHex string, chainID int64, exchange string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	if exchange == "" {
		exchange = ExchangeAddress
	}
	if !common.IsHexAddress(exchange) {
		return nil, fmt.Errorf("crypto/signer: invalid exchange address %q", exchange)
	}

	chain := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		authDomain: ethcrypto.Keccak256(concatBytes(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte(authDomainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			word(chain),
		)),
		orderDomain: ethcrypto.Keccak256(concatBytes(
			exchangeDomainTypeHash,
			ethcrypto.Keccak256([]byte(exchangeDomainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			word(chain),
			addressWord(exchange),
		)),
	}, nil
}

// Address returns the signing wallet address.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer was built for.
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// SignClobAuth signs the ClobAuth message used by the L1 key endpoints.
func (s *Signer) SignClobAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		addressWord(s.address.Hex()),
		ethcrypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(ClobAuthMessage)),
	))
	return s.signDigest(typedDataDigest(s.authDomain, structHash))
}

// SignOrder signs an exchange order and returns a 0x-prefixed 65 byte
// signature.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return "", err
	}
	return s.signDigest(typedDataDigest(s.orderDomain, structHash))
}

// OrderDigest returns the digest SignOrder signs.
func (s *Signer) OrderDigest(o OrderPayload) ([]byte, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return nil, err
	}
	return typedDataDigest(s.orderDomain, structHash), nil
}

func typedDataDigest(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	// go-ethereum yields v in {0,1}; the exchange wants {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	nums := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		nums[f.name] = n
	}
	for _, addr := range []string{o.Maker, o.Signer, o.Taker} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("crypto/signer: invalid address %q", addr)
		}
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		word(nums["salt"]),
		addressWord(o.Maker),
		addressWord(o.Signer),
		addressWord(o.Taker),
		word(nums["tokenId"]),
		word(nums["makerAmount"]),
		word(nums["takerAmount"]),
		word(nums["expiration"]),
		word(nums["nonce"]),
		word(nums["feeRateBps"]),
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	)), nil
}

// word left-pads n to one 32 byte ABI word.
func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func addressWord(addr string) []byte {
	return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)
}

func concatBytes(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}
