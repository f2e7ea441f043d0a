// Package anchorclient implements the escrow program client against an
// anchor-built on-chain program: account listing via getProgramAccounts and
// action execution via anchor instructions.
package anchorclient

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"escrow-gateway/internal/amount"
	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/escrow"
)

// escrowAccountSize is the full serialized escrow account:
// discriminator(8) + seed(8) + bump(1) + initializer(32) + mintA(32) +
// mintB(32) + initializerAmount(8) + takerAmount(8).
const escrowAccountSize = 129

// mintDecimalsOffset is where the decimal exponent sits in an SPL mint account.
const mintDecimalsOffset = 44

// defaultConfirmTimeout bounds confirmation polling per submission.
const defaultConfirmTimeout = 30 * time.Second

// escrowSeedPrefix is the PDA seed prefix the program uses for escrow accounts.
var escrowSeedPrefix = []byte("escrow")

// Client is the on-chain escrow program client. It implements
// escrow.ProgramClient over gagliardetto/solana-go.
type Client struct {
	rpc            *rpc.Client
	program        solana.PublicKey
	signer         solana.PrivateKey
	logger         *log.Logger
	confirmTimeout time.Duration

	mu       sync.Mutex
	decimals map[string]int // mint -> decimal exponent
}

// Option configures a Client.
type Option func(*Client)

// WithConfirmTimeout sets the confirmation polling timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.confirmTimeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the escrow program at programID. The signer pays
// for and signs every submitted transaction.
func New(rpcEndpoint, programID string, signer solana.PrivateKey, opts ...Option) (*Client, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", programID, err)
	}

	c := &Client{
		rpc:            rpc.New(rpcEndpoint),
		program:        program,
		signer:         signer,
		logger:         log.New(os.Stdout, "[anchorclient] ", log.LstdFlags|log.Lshortfile),
		confirmTimeout: defaultConfirmTimeout,
		decimals:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ escrow.ProgramClient = (*Client)(nil)

// escrowAccount is the borsh layout of an escrow account minus the
// discriminator.
type escrowAccount struct {
	Seed              uint64
	Bump              uint8
	Initializer       solana.PublicKey
	MintA             solana.PublicKey
	MintB             solana.PublicKey
	InitializerAmount uint64
	TakerAmount       uint64
}

// anchorDiscriminator derives the 8-byte anchor instruction discriminator.
func anchorDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

// accountDiscriminator derives the 8-byte anchor account discriminator.
func accountDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("account:" + name))
	return h[:8]
}

// List fetches every escrow account of the program.
func (c *Client) List(ctx context.Context) ([]domain.EscrowRecord, error) {
	accounts, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Filters: []rpc.RPCFilter{
			{DataSize: escrowAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: accountDiscriminator("Escrow")}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	records := make([]domain.EscrowRecord, 0, len(accounts))
	for _, acct := range accounts {
		rec, err := c.decodeRecord(ctx, acct.Pubkey, acct.Account.Data.GetBinary())
		if err != nil {
			c.logger.Printf("skip account %s: %v", acct.Pubkey, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) decodeRecord(ctx context.Context, pubkey solana.PublicKey, data []byte) (domain.EscrowRecord, error) {
	if len(data) != escrowAccountSize {
		return domain.EscrowRecord{}, fmt.Errorf("unexpected account size %d", len(data))
	}

	var acc escrowAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&acc); err != nil {
		return domain.EscrowRecord{}, fmt.Errorf("decode escrow account: %w", err)
	}

	decimalsA, err := c.mintDecimals(ctx, acc.MintA)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	decimalsB, err := c.mintDecimals(ctx, acc.MintB)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	uiA, err := amount.UiFromRaw(acc.InitializerAmount, decimalsA)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	uiB, err := amount.UiFromRaw(acc.TakerAmount, decimalsB)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	return domain.EscrowRecord{
		Address:              pubkey.String(),
		Seed:                 acc.Seed,
		Bump:                 acc.Bump,
		Initializer:          acc.Initializer.String(),
		MintA:                acc.MintA.String(),
		MintB:                acc.MintB.String(),
		InitializerAmountRaw: acc.InitializerAmount,
		InitializerAmount:    uiA.InexactFloat64(),
		TakerAmountRaw:       acc.TakerAmount,
		TakerAmount:          uiB.InexactFloat64(),
	}, nil
}

// mintDecimals reads and caches the decimal exponent of a mint account.
func (c *Client) mintDecimals(ctx context.Context, mint solana.PublicKey) (int, error) {
	c.mu.Lock()
	if d, ok := c.decimals[mint.String()]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	acct, err := c.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get mint %s: %w", mint, err)
	}
	if acct.Value == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}

	data := acct.Value.Data.GetBinary()
	if len(data) <= mintDecimalsOffset {
		return 0, fmt.Errorf("mint %s: account data too short", mint)
	}

	d := int(data[mintDecimalsOffset])
	c.mu.Lock()
	c.decimals[mint.String()] = d
	c.mu.Unlock()
	return d, nil
}

// Submit executes a close (cancel) or accept (exchange) against the record
// and blocks until the transaction is confirmed.
func (c *Client) Submit(ctx context.Context, action domain.EscrowAction, rec domain.EscrowRecord) (string, error) {
	var ix solana.Instruction
	var err error

	switch action {
	case domain.ActionClose:
		ix, err = c.cancelInstruction(rec)
	case domain.ActionAccept:
		ix, err = c.exchangeInstruction(rec)
	default:
		return "", fmt.Errorf("unsupported action %s", action)
	}
	if err != nil {
		return "", err
	}

	return c.sendAndConfirm(ctx, ix)
}

// Create opens a new escrow offering amountARaw of mintA for amountBRaw of
// mintB and blocks until the transaction is confirmed.
func (c *Client) Create(ctx context.Context, mintA, mintB string, amountARaw, amountBRaw uint64) (string, error) {
	mintAKey, err := solana.PublicKeyFromBase58(mintA)
	if err != nil {
		return "", fmt.Errorf("invalid mint %q: %w", mintA, err)
	}
	mintBKey, err := solana.PublicKeyFromBase58(mintB)
	if err != nil {
		return "", fmt.Errorf("invalid mint %q: %w", mintB, err)
	}

	maker := c.signer.PublicKey()
	seed := uint64(time.Now().UnixNano())

	escrowAddr, _, err := c.escrowAddress(maker, seed)
	if err != nil {
		return "", err
	}
	vault, _, err := solana.FindAssociatedTokenAddress(escrowAddr, mintAKey)
	if err != nil {
		return "", fmt.Errorf("vault address: %w", err)
	}
	makerAtaA, _, err := solana.FindAssociatedTokenAddress(maker, mintAKey)
	if err != nil {
		return "", fmt.Errorf("maker token account: %w", err)
	}

	data := make([]byte, 8+8+8+8)
	copy(data[:8], anchorDiscriminator("initialize"))
	binary.LittleEndian.PutUint64(data[8:16], seed)
	binary.LittleEndian.PutUint64(data[16:24], amountARaw)
	binary.LittleEndian.PutUint64(data[24:32], amountBRaw)

	ix := solana.NewInstruction(
		c.program,
		solana.AccountMetaSlice{
			{PublicKey: maker, IsSigner: true, IsWritable: true},
			{PublicKey: mintAKey, IsSigner: false, IsWritable: false},
			{PublicKey: mintBKey, IsSigner: false, IsWritable: false},
			{PublicKey: makerAtaA, IsSigner: false, IsWritable: true},
			{PublicKey: escrowAddr, IsSigner: false, IsWritable: true},
			{PublicKey: vault, IsSigner: false, IsWritable: true},
			{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		data,
	)

	return c.sendAndConfirm(ctx, ix)
}

// escrowAddress derives the escrow PDA from the maker and seed.
func (c *Client) escrowAddress(maker solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	var seedLE [8]byte
	binary.LittleEndian.PutUint64(seedLE[:], seed)

	addr, bump, err := solana.FindProgramAddress(
		[][]byte{escrowSeedPrefix, maker.Bytes(), seedLE[:]},
		c.program,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive escrow address: %w", err)
	}
	return addr, bump, nil
}

func (c *Client) cancelInstruction(rec domain.EscrowRecord) (solana.Instruction, error) {
	escrowAddr, err := solana.PublicKeyFromBase58(rec.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow address %q: %w", rec.Address, err)
	}
	initializer, err := solana.PublicKeyFromBase58(rec.Initializer)
	if err != nil {
		return nil, fmt.Errorf("invalid initializer %q: %w", rec.Initializer, err)
	}
	mintA, err := solana.PublicKeyFromBase58(rec.MintA)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", rec.MintA, err)
	}

	vault, _, err := solana.FindAssociatedTokenAddress(escrowAddr, mintA)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}
	initializerAtaA, _, err := solana.FindAssociatedTokenAddress(initializer, mintA)
	if err != nil {
		return nil, fmt.Errorf("initializer token account: %w", err)
	}

	return solana.NewInstruction(
		c.program,
		solana.AccountMetaSlice{
			{PublicKey: initializer, IsSigner: true, IsWritable: true},
			{PublicKey: mintA, IsSigner: false, IsWritable: false},
			{PublicKey: initializerAtaA, IsSigner: false, IsWritable: true},
			{PublicKey: escrowAddr, IsSigner: false, IsWritable: true},
			{PublicKey: vault, IsSigner: false, IsWritable: true},
			{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		anchorDiscriminator("cancel"),
	), nil
}

func (c *Client) exchangeInstruction(rec domain.EscrowRecord) (solana.Instruction, error) {
	escrowAddr, err := solana.PublicKeyFromBase58(rec.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow address %q: %w", rec.Address, err)
	}
	initializer, err := solana.PublicKeyFromBase58(rec.Initializer)
	if err != nil {
		return nil, fmt.Errorf("invalid initializer %q: %w", rec.Initializer, err)
	}
	mintA, err := solana.PublicKeyFromBase58(rec.MintA)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", rec.MintA, err)
	}
	mintB, err := solana.PublicKeyFromBase58(rec.MintB)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", rec.MintB, err)
	}

	taker := c.signer.PublicKey()

	vault, _, err := solana.FindAssociatedTokenAddress(escrowAddr, mintA)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}
	takerAtaA, _, err := solana.FindAssociatedTokenAddress(taker, mintA)
	if err != nil {
		return nil, fmt.Errorf("taker token account: %w", err)
	}
	takerAtaB, _, err := solana.FindAssociatedTokenAddress(taker, mintB)
	if err != nil {
		return nil, fmt.Errorf("taker token account: %w", err)
	}
	initializerAtaB, _, err := solana.FindAssociatedTokenAddress(initializer, mintB)
	if err != nil {
		return nil, fmt.Errorf("initializer token account: %w", err)
	}

	return solana.NewInstruction(
		c.program,
		solana.AccountMetaSlice{
			{PublicKey: taker, IsSigner: true, IsWritable: true},
			{PublicKey: initializer, IsSigner: false, IsWritable: true},
			{PublicKey: mintA, IsSigner: false, IsWritable: false},
			{PublicKey: mintB, IsSigner: false, IsWritable: false},
			{PublicKey: takerAtaA, IsSigner: false, IsWritable: true},
			{PublicKey: takerAtaB, IsSigner: false, IsWritable: true},
			{PublicKey: initializerAtaB, IsSigner: false, IsWritable: true},
			{PublicKey: escrowAddr, IsSigner: false, IsWritable: true},
			{PublicKey: vault, IsSigner: false, IsWritable: true},
			{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		},
		anchorDiscriminator("exchange"),
	), nil
}

// sendAndConfirm builds, signs, sends and confirms a one-instruction
// transaction paid by the client signer.
func (c *Client) sendAndConfirm(ctx context.Context, ix solana.Instruction) (string, error) {
	payer := c.signer.PublicKey()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	if err := c.confirm(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// confirm polls signature status until the transaction is confirmed or the
// timeout expires.
func (c *Client) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
			status, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil || len(status.Value) == 0 || status.Value[0] == nil {
				continue
			}
			if status.Value[0].Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Value[0].Err)
			}
			if status.Value[0].ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.Value[0].ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
