package registry

import "livegame-tracker/internal/domain"

type entry struct {
	slug    string
	variant string
	name    string
	lobby   domain.LobbyKey
}

var builtin = []entry{
	{"crazy-time", "", "Crazy Time", domain.DefaultLobbyKey("crazyTime")},
	{"crazy-time", "a", "Crazy Time A", domain.VariantLobbyKey("crazyTime", "a")},
	{"monopoly-live", "", "Monopoly Live", domain.DefaultLobbyKey("monopoly")},
	{"monopoly-big-baller", "", "Monopoly Big Baller", domain.DefaultLobbyKey("monopolyBigBaller")},
	{"funky-time", "", "Funky Time", domain.DefaultLobbyKey("funkyTime")},
	{"lightning-roulette", "", "Lightning Roulette", domain.DefaultLobbyKey("lightningRoulette")},
	{"lightning-roulette", "xxxtreme", "XXXtreme Lightning Roulette", domain.VariantLobbyKey("lightningRoulette", "xxxtreme")},
	{"immersive-roulette", "", "Immersive Roulette", domain.DefaultLobbyKey("immersiveRoulette")},
	{"lightning-dice", "", "Lightning Dice", domain.DefaultLobbyKey("lightningDice")},
	{"dream-catcher", "", "Dream Catcher", domain.DefaultLobbyKey("dreamCatcher")},
	{"mega-ball", "", "Mega Ball", domain.DefaultLobbyKey("megaBall")},
	{"deal-or-no-deal", "", "Deal or No Deal", domain.DefaultLobbyKey("dealOrNoDeal")},
	{"cash-or-crash", "", "Cash or Crash", domain.DefaultLobbyKey("cashOrCrash")},
	{"crazy-coin-flip", "", "Crazy Coin Flip", domain.DefaultLobbyKey("crazyCoinFlip")},
	{"sweet-bonanza-candyland", "", "Sweet Bonanza CandyLand", domain.NoLobbyKey()},
	{"adventures-beyond-wonderland", "", "Adventures Beyond Wonderland", domain.NoLobbyKey()},
	{"boom-city", "", "Boom City", domain.NoLobbyKey()},
	{"mega-wheel", "", "Mega Wheel", domain.NoLobbyKey()},
	{"lightning-baccarat", "", "Lightning Baccarat", domain.DefaultLobbyKey("lightningBaccarat")},
	{"red-door-roulette", "", "Red Door Roulette", domain.DefaultLobbyKey("redDoorRoulette")},
	{"gonzos-treasure-map", "", "Gonzo's Treasure Map", domain.DefaultLobbyKey("gonzosTreasureMap")},
	{"stock-market", "", "Stock Market", domain.DefaultLobbyKey("stockMarket")},
	{"crazy-pachinko", "", "Crazy Pachinko", domain.DefaultLobbyKey("crazyPachinko")},
	{"football-studio", "", "Football Studio", domain.NoLobbyKey()},
	{"lightning-storm", "", "Lightning Storm", domain.DefaultLobbyKey("lightningStorm")},
}

// Builtin returns a fresh copy of the tracked games.
func Builtin() []domain.Identifier {
	out := make([]domain.Identifier, 0, len(builtin))
	for _, e := range builtin {
		out = append(out, e.identifier())
	}
	return out
}

func (e entry) identifier() domain.Identifier {
	id := domain.Identifier{
		ID:      e.slug,
		Slug:    e.slug,
		Variant: e.variant,
		Name:    e.name,
		Lobby:   e.lobby,
		Target: domain.Target{
			Path:            "/" + e.slug + "/",
			CounterSelector: defaultCounterSelector,
		},
	}
	if e.variant != "" {
		id.ID = e.slug + ":" + e.variant
		id.Target.VariantSelector = "[data-variant=" + e.variant + "]"
		id.Target.VariantParam = e.variant
	}
	return id
}
