package registry

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Builtin returns the registry of supported chains and tokens.
// Mainnet and testnet sets are disjoint; chains never bridge across the
// network boundary.
func Builtin(testnet bool) *Registry {
	if testnet {
		return builtinFuji()
	}
	return builtinMainnet()
}

// Chain ids.
const (
	AvalancheMainnet ChainID = 43114
	DexalotMainnet   ChainID = 432204
	AvalancheFuji    ChainID = 43113
	DexalotFuji      ChainID = 432201
)

func builtinMainnet() *Registry {
	r := New()

	r.AddChain(&Chain{
		ID:                 AvalancheMainnet,
		Name:               "Avalanche C-Chain",
		BlockchainID:       common.HexToHash("0x0427d4b22a2a78bcddd456742caf91b56badbff985ee19aef14573e7343fd652"),
		NativeToken:        "avax",
		MaxQueryBlockRange: 2048,
		BlockTimeWindow:    1024,
		AvgBlockTime:       2 * time.Second,
		Confirmations:      1,
		Cells: []Cell{
			{
				Address: common.HexToAddress("0xeC21Ee9dBf8DCbfEcE59FaCF2DD796af34Ae64A6"),
				Type:    CellYakSwap,
				CanSwap: true,
			},
			{
				Address: common.HexToAddress("0x9C67d02BBc1690bA07FbEfba37dB3e4f4048Dc94"),
				Type:    CellHopOnly,
			},
		},
	})

	r.AddChain(&Chain{
		ID:                 DexalotMainnet,
		Name:               "Dexalot",
		BlockchainID:       common.HexToHash("0x9f3be606497285d0ffbb5ac9ba24aa60346a9b1812479ed66cb329f394a4b1c7"),
		NativeToken:        "alot",
		MaxQueryBlockRange: 2048,
		BlockTimeWindow:    1024,
		AvgBlockTime:       2 * time.Second,
		Confirmations:      1,
		Cells: []Cell{
			{
				Address: common.HexToAddress("0x3C4819E3a103f10DB3f0e6b81F425A01DbAFdb36"),
				Type:    CellDexalot,
				CanSwap: true,
				APIData: &APIData{
					Provider:  "dexalot",
					BaseURL:   "https://api.dexalot.com/api/rfq",
					PartnerID: "chainhop",
					Executor:  common.HexToAddress("0x3C4819E3a103f10DB3f0e6b81F425A01DbAFdb36"),
				},
			},
		},
	})

	wavax := common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7")
	walot := common.HexToAddress("0x093783055F9047C2BfF99c4e414501F8A147bC69")
	usdcC := common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")
	usdcDexalot := common.HexToAddress("0x1A5d0fE56Ff0095B5f2F8D5CdE5F0eBd68f2a908")
	avaxOnDexalot := common.HexToAddress("0x7086b8ba0b8a2E6Bb4CaD4DbE27EB822b75ef4c0")
	alotOnC := common.HexToAddress("0x2147EfFF675e4A4eE1C2f918d181cDBd7a8E208f")

	// Avalanche C-Chain tokens.
	r.AddToken(&Token{
		ID: "avax", ChainID: AvalancheMainnet, Address: NativeTokenAddress,
		Decimals: 18, Symbol: "AVAX", IsNative: true, WrappedAddress: wavax,
	})
	r.AddToken(&Token{
		ID: "wavax", ChainID: AvalancheMainnet, Address: wavax,
		Decimals: 18, Symbol: "WAVAX",
		Bridges: map[ChainID]BridgeDescriptor{
			DexalotMainnet: {Address: common.HexToAddress("0x97bBA61F61f2b0eEF60428947b990457f8eCb3a3"), Type: BridgeNativeHome},
		},
	})
	r.AddToken(&Token{
		ID: "usdc", ChainID: AvalancheMainnet, Address: usdcC,
		Decimals: 6, Symbol: "USDC",
		Bridges: map[ChainID]BridgeDescriptor{
			DexalotMainnet: {Address: common.HexToAddress("0x5425890298aed601595a70AB815c96711a31Bc65"), Type: BridgeErc20Home},
		},
	})
	r.AddToken(&Token{
		ID: "alot", ChainID: AvalancheMainnet, Address: alotOnC,
		Decimals: 18, Symbol: "ALOT",
		Bridges: map[ChainID]BridgeDescriptor{
			DexalotMainnet: {Address: common.HexToAddress("0x2b1aB8e7cb0A0d9F0dAd16F4Bbd18a155E01e1F1"), Type: BridgeNativeRemote},
		},
	})

	// Dexalot L1 tokens.
	r.AddToken(&Token{
		ID: "alot", ChainID: DexalotMainnet, Address: NativeTokenAddress,
		Decimals: 18, Symbol: "ALOT", IsNative: true, WrappedAddress: walot,
		Bridges: map[ChainID]BridgeDescriptor{
			AvalancheMainnet: {Address: common.HexToAddress("0x443A9F0dC5dc5EAB1BcF4C5Eb2E43C29528Befa5"), Type: BridgeNativeHome},
		},
	})
	r.AddToken(&Token{
		ID: "walot", ChainID: DexalotMainnet, Address: walot,
		Decimals: 18, Symbol: "WALOT",
	})
	r.AddToken(&Token{
		ID: "avax", ChainID: DexalotMainnet, Address: avaxOnDexalot,
		Decimals: 18, Symbol: "AVAX",
		Bridges: map[ChainID]BridgeDescriptor{
			AvalancheMainnet: {Address: common.HexToAddress("0x72b11596523C5dBbdE0C44Bd29aD8c6a0bC4fa6e"), Type: BridgeNativeRemote},
		},
	})
	r.AddToken(&Token{
		ID: "usdc", ChainID: DexalotMainnet, Address: usdcDexalot,
		Decimals: 6, Symbol: "USDC",
		Bridges: map[ChainID]BridgeDescriptor{
			AvalancheMainnet: {Address: common.HexToAddress("0x46A0Db40Ab0cf4d5bcE02A80Dd172cB9d2aF3b2F"), Type: BridgeErc20Remote},
		},
	})

	return r
}

func builtinFuji() *Registry {
	r := New()

	r.AddChain(&Chain{
		ID:                 AvalancheFuji,
		Name:               "Avalanche Fuji",
		BlockchainID:       common.HexToHash("0x7fc93d85c6d62c5b2ac0b519c87010ea5294012d1e407030d6acd0021cac10d5"),
		NativeToken:        "avax",
		MaxQueryBlockRange: 2048,
		BlockTimeWindow:    1024,
		AvgBlockTime:       2 * time.Second,
		Confirmations:      1,
		Testnet:            true,
		Cells: []Cell{
			{
				Address: common.HexToAddress("0x4C6dB8eB2c9B5E44a96fDA0A0d89e38008eBbB3c"),
				Type:    CellUniV2,
				CanSwap: true,
			},
		},
	})

	r.AddChain(&Chain{
		ID:                 DexalotFuji,
		Name:               "Dexalot Fuji",
		BlockchainID:       common.HexToHash("0x9625f44fd8b11b24d59a24e8e7b02e9e7257c6c594ee264716b9b9a24f9b9c8f"),
		NativeToken:        "alot",
		MaxQueryBlockRange: 2048,
		BlockTimeWindow:    1024,
		AvgBlockTime:       2 * time.Second,
		Confirmations:      1,
		Testnet:            true,
		Cells: []Cell{
			{
				Address: common.HexToAddress("0xD6C213D6B0aB21eD0f43ac04a4Da1b22a4D4D7b2"),
				Type:    CellDexalot,
				CanSwap: true,
				APIData: &APIData{
					Provider:  "dexalot",
					BaseURL:   "https://api.dexalot-test.com/api/rfq",
					PartnerID: "chainhop",
					Executor:  common.HexToAddress("0xD6C213D6B0aB21eD0f43ac04a4Da1b22a4D4D7b2"),
				},
			},
		},
	})

	wavaxFuji := common.HexToAddress("0xd00ae08403B9bbb9124bB305C09058E32C39A48c")
	walotFuji := common.HexToAddress("0xB0fA58B8bCD938F7F8E3A4E150bC5cdA9A1bbEC5")
	avaxOnDexalotFuji := common.HexToAddress("0x68E2EbD8B682Cf98dE931cf3Fcad45bA53A3b5Bb")

	r.AddToken(&Token{
		ID: "avax", ChainID: AvalancheFuji, Address: NativeTokenAddress,
		Decimals: 18, Symbol: "AVAX", IsNative: true, WrappedAddress: wavaxFuji,
	})
	r.AddToken(&Token{
		ID: "wavax", ChainID: AvalancheFuji, Address: wavaxFuji,
		Decimals: 18, Symbol: "WAVAX",
		Bridges: map[ChainID]BridgeDescriptor{
			DexalotFuji: {Address: common.HexToAddress("0x8Db6e6CA173D6a4DbFC0D1b86Ab48cD2CE9c5C2e"), Type: BridgeNativeHome},
		},
	})
	r.AddToken(&Token{
		ID: "alot", ChainID: DexalotFuji, Address: NativeTokenAddress,
		Decimals: 18, Symbol: "ALOT", IsNative: true, WrappedAddress: walotFuji,
	})
	r.AddToken(&Token{
		ID: "walot", ChainID: DexalotFuji, Address: walotFuji,
		Decimals: 18, Symbol: "WALOT",
	})
	r.AddToken(&Token{
		ID: "avax", ChainID: DexalotFuji, Address: avaxOnDexalotFuji,
		Decimals: 18, Symbol: "AVAX",
		Bridges: map[ChainID]BridgeDescriptor{
			AvalancheFuji: {Address: common.HexToAddress("0x23d1D15EA1FD9a7e04a4B1d8E3F1F48f2F9B0c1e"), Type: BridgeNativeRemote},
		},
	})

	return r
}
