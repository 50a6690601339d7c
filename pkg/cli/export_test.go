package cli

var RunTurn = runTurn
